package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aundhe1m/backy-agent/pkg/pool"
	"github.com/aundhe1m/backy-agent/pkg/types"
)

// listDrives serves the lsblk-shaped snapshot with exclusions applied.
func (s *Server) listDrives(w http.ResponseWriter, r *http.Request) {
	snapshot := s.drives.Get()
	if snapshot == nil {
		snapshot = []*types.Drive{}
	}
	writeJSON(w, http.StatusOK, types.LsblkOutput{BlockDevices: snapshot})
}

func (s *Server) driveStatus(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	view, err := s.operator.DriveStatus(r.Context(), serial)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type killRequest struct {
	PIDs []int `json:"pids"`
}

type killResponse struct {
	Success bool              `json:"success"`
	Results []pool.KillResult `json:"results"`
}

func (s *Server) killProcesses(w http.ResponseWriter, r *http.Request) {
	var req killRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.Validationf("invalid request body: %v", err))
		return
	}
	if len(req.PIDs) == 0 {
		writeError(w, types.Validationf("no pids given"))
		return
	}

	results := s.operator.KillProcesses(r.Context(), req.PIDs)
	success := true
	for _, res := range results {
		if !res.Success {
			success = false
		}
	}
	writeJSON(w, http.StatusOK, killResponse{Success: success, Results: results})
}

type listPoolsResponse struct {
	Pools []pool.Summary `json:"pools"`
}

func (s *Server) listPools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listPoolsResponse{Pools: s.inventory.ListPools(r.Context())})
}

type createPoolRequest struct {
	Label         string            `json:"label"`
	DriveSerials  []string          `json:"driveSerials"`
	DriveLabels   map[string]string `json:"driveLabels"`
	MountPath     string            `json:"mountPath"`
	PoolGroupGUID string            `json:"poolGroupGuid"`
}

type createPoolResponse struct {
	Success       bool                 `json:"success"`
	PoolGroupGUID string               `json:"poolGroupGuid"`
	State         types.OperationState `json:"state"`
}

// createPool registers the operation and returns immediately; clients poll
// the pool GUID until the state leaves creating.
func (s *Server) createPool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.Validationf("invalid request body: %v", err))
		return
	}

	guid, err := s.operator.CreatePool(r.Context(), pool.CreateRequest{
		Label:         req.Label,
		DriveSerials:  req.DriveSerials,
		DriveLabels:   req.DriveLabels,
		MountPath:     req.MountPath,
		PoolGroupGUID: req.PoolGroupGUID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, createPoolResponse{
		Success:       true,
		PoolGroupGUID: guid,
		State:         types.StateCreating,
	})
}

type poolDetailResponse struct {
	PoolGroupGUID      string               `json:"poolGroupGuid"`
	Label              string               `json:"label,omitempty"`
	State              types.OperationState `json:"state"`
	PoolStatus         types.PoolStatus     `json:"poolStatus"`
	MdDeviceName       string               `json:"mdDeviceName,omitempty"`
	Size               int64                `json:"size"`
	Used               int64                `json:"used"`
	Available          int64                `json:"available"`
	UsePercent         string               `json:"usePercent"`
	MountPath          string               `json:"mountPath,omitempty"`
	Drives             []pool.DetailDrive   `json:"drives"`
	ResyncPercentage   *float64             `json:"resyncPercentage,omitempty"`
	ResyncTimeEstimate *float64             `json:"resyncTimeEstimate,omitempty"`
	ErrorMessage       string               `json:"errorMessage,omitempty"`
}

// getPool merges the operation registry view with the inventory detail:
// while an operation is in flight (or failed without metadata) the registry
// is the source of truth; otherwise the composed detail is.
func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	guid := chi.URLParam(r, "guid")

	op, hasOp := s.registry.Get(guid)
	detail, err := s.inventory.ByGUID(r.Context(), guid)
	if err != nil && !hasOp {
		writeError(w, err)
		return
	}

	resp := poolDetailResponse{
		PoolGroupGUID: guid,
		State:         types.StateReady,
		PoolStatus:    types.PoolStatusInactive,
		UsePercent:    "0%",
		Drives:        []pool.DetailDrive{},
	}

	if detail != nil {
		resp.Label = detail.Label
		resp.PoolStatus = detail.Status
		resp.MdDeviceName = detail.MdDeviceName
		resp.Size = detail.SizeBytes
		resp.Used = detail.UsedBytes
		resp.Available = detail.AvailableBytes
		resp.UsePercent = detail.UsePercent
		resp.MountPath = detail.MountPath
		resp.Drives = detail.Drives
		resp.ResyncPercentage = detail.ResyncPercentage
		resp.ResyncTimeEstimate = detail.ResyncTimeEstimate
	}
	if hasOp {
		resp.State = op.State
		resp.ErrorMessage = op.ErrorMessage
		if resp.MdDeviceName == "" {
			resp.MdDeviceName = op.MdDeviceName
		}
		if resp.MountPath == "" {
			resp.MountPath = op.MountPath
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type poolOutputResponse struct {
	Outputs []string `json:"outputs"`
}

func (s *Server) getPoolOutput(w http.ResponseWriter, r *http.Request) {
	guid := chi.URLParam(r, "guid")

	transcript, ok := s.registry.Transcript(guid)
	if !ok {
		writeError(w, types.NotFoundf("no operation recorded for pool %s", guid))
		return
	}
	if transcript == nil {
		transcript = []string{}
	}
	writeJSON(w, http.StatusOK, poolOutputResponse{Outputs: transcript})
}

type mountPoolRequest struct {
	MountPath string `json:"mountPath"`
}

type commandResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (s *Server) mountPool(w http.ResponseWriter, r *http.Request) {
	guid := chi.URLParam(r, "guid")

	var req mountPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.Validationf("invalid request body: %v", err))
		return
	}

	msg, err := s.operator.MountPool(r.Context(), guid, req.MountPath)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Success: true, Message: msg})
}

func (s *Server) unmountPool(w http.ResponseWriter, r *http.Request) {
	guid := chi.URLParam(r, "guid")

	msg, err := s.operator.UnmountPool(r.Context(), guid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Success: true, Message: msg})
}

func (s *Server) removePool(w http.ResponseWriter, r *http.Request) {
	guid := chi.URLParam(r, "guid")

	msg, err := s.operator.RemovePool(r.Context(), guid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Success: true, Message: msg})
}

type validateResponse struct {
	Success      bool `json:"success"`
	FixedEntries int  `json:"fixedEntries"`
}

func (s *Server) validatePools(w http.ResponseWriter, r *http.Request) {
	fixed, err := s.reconciler.ValidateAndUpdate(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Success: true, FixedEntries: fixed})
}
