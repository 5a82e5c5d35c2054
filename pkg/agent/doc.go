/*
Package agent is the composition root: it builds the component DAG from
configuration and owns the lifetimes of the background workers.

Startup order is load metadata (quarantining a corrupt file), take the
initial drive snapshot, reconcile metadata against the kernel's md state,
then start the long-lived workers: the periodic drive refresh, the
operation sweeper and the HTTP server. All workers share one errgroup and
one cancellation handle; SIGINT/SIGTERM stops everything.
*/
package agent
