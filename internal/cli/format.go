package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Ning0612/ferry/internal/domain"
	"github.com/Ning0612/ferry/internal/progress"
)

const timeLayout = "2006-01-02 15:04"

// formatEntry renders one listing line in the style of `hdfs dfs -ls`
func formatEntry(info domain.FileInfo, name string) string {
	repl := "-"
	if info.Replication > 0 {
		repl = strconv.Itoa(info.Replication)
	}
	return fmt.Sprintf("%s %3s %-10s %-10s %12d %s %s",
		modeString(info.Type, info.Permission),
		repl,
		orDash(info.Owner),
		orDash(info.Group),
		info.Size,
		info.ModTime.Local().Format(timeLayout),
		name,
	)
}

// modeString turns an octal permission such as "755" into drwxr-xr-x
func modeString(t domain.FileType, perm string) string {
	kind := "-"
	switch t {
	case domain.FileTypeDirectory:
		kind = "d"
	case domain.FileTypeSymlink:
		kind = "l"
	}

	bits, err := strconv.ParseUint(perm, 8, 32)
	if err != nil || perm == "" {
		return kind + "?????????"
	}

	var sb strings.Builder
	sb.WriteString(kind)
	const rwx = "rwx"
	for shift := 8; shift >= 0; shift-- {
		if bits&(1<<uint(shift)) != 0 {
			sb.WriteByte(rwx[(8-shift)%3])
		} else {
			sb.WriteByte('-')
		}
	}
	return sb.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatStat renders every field of a descriptor, one per line
func formatStat(info domain.FileInfo, display string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "path:        %s\n", display)
	fmt.Fprintf(&sb, "type:        %s\n", info.Type)
	fmt.Fprintf(&sb, "size:        %d (%s)\n", info.Size, progress.FormatBytes(info.Size))
	if info.IsDir() {
		fmt.Fprintf(&sb, "children:    %d\n", info.ChildCount)
	}
	fmt.Fprintf(&sb, "modified:    %s\n", info.ModTime.Local().Format(timeLayout+":05"))
	fmt.Fprintf(&sb, "accessed:    %s\n", info.AccessTime.Local().Format(timeLayout+":05"))
	fmt.Fprintf(&sb, "owner:       %s\n", orDash(info.Owner))
	fmt.Fprintf(&sb, "group:       %s\n", orDash(info.Group))
	fmt.Fprintf(&sb, "permission:  %s\n", modeString(info.Type, info.Permission))
	if info.Replication > 0 {
		fmt.Fprintf(&sb, "replication: %d\n", info.Replication)
	}
	return sb.String()
}
