//go:build linux

package local

import (
	"os"
	"os/user"
	"strconv"
	"syscall"
	"time"
)

// ownership returns owner name, group name and access time
func ownership(info os.FileInfo) (string, string, time.Time) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return "", "", info.ModTime()
	}

	uid := strconv.FormatUint(uint64(st.Uid), 10)
	gid := strconv.FormatUint(uint64(st.Gid), 10)
	owner, group := uid, gid
	if u, err := user.LookupId(uid); err == nil {
		owner = u.Username
	}
	if g, err := user.LookupGroupId(gid); err == nil {
		group = g.Name
	}

	return owner, group, time.Unix(int64(st.Atim.Sec), int64(st.Atim.Nsec))
}
