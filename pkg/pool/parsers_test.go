package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComponentDevices(t *testing.T) {
	detail := `/dev/md0:
           Version : 1.2
     Creation Time : Thu Jun  5 10:00:00 2025
        Raid Level : raid1
        Array Size : 976630464 (931.39 GiB 1000.07 GB)
      Raid Devices : 2
     Total Devices : 2

             State : clean

    Number   Major   Minor   RaidDevice State
       0       8       16        0      active sync   /dev/sdb
       1       8       32        1      active sync   /dev/sdc`

	assert.Equal(t, []string{"/dev/sdb", "/dev/sdc"}, componentDevices(detail))
}

func TestComponentDevicesSkipsRemovedSlots(t *testing.T) {
	detail := `/dev/md1:
        Raid Level : raid5
      Raid Devices : 3

    Number   Major   Minor   RaidDevice State
       0       8        1        0      active sync   /dev/sda1
       -       0        0        1      removed
       2       8       33        2      active sync   /dev/sdc1

       1       8       17        -      faulty   /dev/sdb1`

	assert.Equal(t, []string{"/dev/sda1", "/dev/sdc1", "/dev/sdb1"}, componentDevices(detail))
}

func TestComponentDevicesEmptyOutput(t *testing.T) {
	assert.Nil(t, componentDevices(""))
	assert.Nil(t, componentDevices("mdadm: cannot open /dev/md0: No such file or directory"))
}

func TestParseLsof(t *testing.T) {
	output := `COMMAND  PID USER   FD   TYPE DEVICE SIZE/OFF NODE NAME
bash    4242 root  cwd    DIR    9,0     4096    2 /mnt/p1
bash    4242 root  rtd    DIR    9,0     4096    2 /mnt/p1
rsync   5150 root    3r   REG    9,0  1048576   77 /mnt/p1/backup.tar`

	procs := parseLsof(output)
	assert.Equal(t, []Process{
		{Command: "bash", PID: 4242},
		{Command: "rsync", PID: 5150},
	}, procs)
	assert.Equal(t, "bash(4242), rsync(5150)", processList(procs))
}

func TestParseLsofEmpty(t *testing.T) {
	assert.Empty(t, parseLsof(""))
	assert.Empty(t, parseLsof("COMMAND  PID USER   FD   TYPE DEVICE SIZE/OFF NODE NAME"))
}
