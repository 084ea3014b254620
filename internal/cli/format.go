package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/metorial/bluefox"
	"github.com/metorial/bluefox/internal/models"
)

func FormatJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func FormatServersTable(w io.Writer, servers []*bluefox.Server) error {
	if len(servers) == 0 {
		fmt.Fprintln(w, "No servers found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tNODE\tSTATUS\tMEMORY\tDISK\tCPU\tSFTP")

	for _, s := range servers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID,
			s.String(),
			s.Node,
			serverStatus(s),
			formatLimit(s.Limits, func(l *bluefox.Limits) int64 { return l.Memory }),
			formatLimit(s.Limits, func(l *bluefox.Limits) int64 { return l.Disk }),
			formatCPU(s.Limits),
			formatSFTP(s.SFTP),
		)
	}

	return tw.Flush()
}

func FormatServerDetail(w io.Writer, s *bluefox.Server) error {
	fmt.Fprintf(w, "Server: %s\n", s.String())
	fmt.Fprintf(w, "Identifier: %s\n", s.ID)
	if s.UUID != nil {
		fmt.Fprintf(w, "UUID: %s\n", s.UUID)
	}
	if s.InternalID != nil {
		fmt.Fprintf(w, "Internal ID: %d\n", *s.InternalID)
	}
	fmt.Fprintf(w, "Node: %s\n", s.Node)
	fmt.Fprintf(w, "Status: %s\n", serverStatus(s))
	fmt.Fprintf(w, "Owner: %s\n", formatBool(s.IsOwner))
	fmt.Fprintf(w, "SFTP: %s\n", formatSFTP(s.SFTP))
	if s.DockerImage != "" {
		fmt.Fprintf(w, "Image: %s\n", s.DockerImage)
	}
	if s.Invocation != "" {
		fmt.Fprintf(w, "Invocation: %s\n", s.Invocation)
	}
	fmt.Fprintf(w, "\n")

	if s.Limits == nil {
		fmt.Fprintln(w, "No resource limits available")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "Limits:")
		fmt.Fprintf(tw, "  Memory:\t%s\n", formatMegabytes(s.Limits.Memory))
		fmt.Fprintf(tw, "  Swap:\t%s\n", formatMegabytes(s.Limits.Swap))
		fmt.Fprintf(tw, "  Disk:\t%s\n", formatMegabytes(s.Limits.Disk))
		fmt.Fprintf(tw, "  IO:\t%d\n", s.Limits.IO)
		fmt.Fprintf(tw, "  CPU:\t%s\n", formatCPU(s.Limits))
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if s.FeatureLimits != nil {
		fmt.Fprintf(w, "Feature Limits: %d databases, %d allocations, %d backups\n",
			s.FeatureLimits.Databases, s.FeatureLimits.Allocations, s.FeatureLimits.Backups)
	}
	if len(s.Meta.Permissions) > 0 {
		fmt.Fprintf(w, "Permissions: %s\n", strings.Join(s.Meta.Permissions, ", "))
	}

	return nil
}

func FormatAccount(w io.Writer, a *bluefox.Account) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%d\n", a.ID)
	fmt.Fprintf(tw, "Username:\t%s\n", a.Username)
	fmt.Fprintf(tw, "Email:\t%s\n", a.Email)
	fmt.Fprintf(tw, "Name:\t%s\n", strings.TrimSpace(a.FirstName+" "+a.LastName))
	fmt.Fprintf(tw, "Admin:\t%s\n", formatBool(a.Admin))
	return tw.Flush()
}

func FormatHistoryTable(w io.Writer, snapshots []models.Snapshot) error {
	if len(snapshots) == 0 {
		fmt.Fprintln(w, "No snapshots recorded")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORDED\tID\tNAME\tNODE\tSTATUS\tMEMORY\tDISK")

	for _, s := range snapshots {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			formatTime(s.RecordedAt),
			s.Identifier,
			s.Name,
			s.Node,
			status(s.Suspended, s.Installing, s.Transferring),
			formatMegabytes(s.MemoryMB),
			formatMegabytes(s.DiskMB),
		)
	}

	return tw.Flush()
}

func serverStatus(s *bluefox.Server) string {
	return status(s.Suspended, s.Installing, s.Transferring)
}

func status(suspended, installing, transferring bool) string {
	switch {
	case suspended:
		return "suspended"
	case installing:
		return "installing"
	case transferring:
		return "transferring"
	default:
		return "active"
	}
}

func formatLimit(l *bluefox.Limits, field func(*bluefox.Limits) int64) string {
	if l == nil {
		return "-"
	}
	return formatMegabytes(field(l))
}

func formatCPU(l *bluefox.Limits) string {
	if l == nil {
		return "-"
	}
	if l.CPU == 0 {
		return "unlimited"
	}
	return strconv.FormatInt(l.CPU, 10) + "%"
}

// formatMegabytes renders a panel limit, which is expressed in MiB; 0 means
// unlimited.
func formatMegabytes(mb int64) string {
	if mb == 0 {
		return "unlimited"
	}
	if mb < 0 {
		return strconv.FormatInt(mb, 10)
	}

	size := float64(mb)
	units := []string{"MB", "GB", "TB"}
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}

	return fmt.Sprintf("%.1f %s", size, units[i])
}

func formatSFTP(d bluefox.SFTPDetails) string {
	if d.IP == "" {
		return "-"
	}
	if d.Port == 0 {
		return d.IP
	}
	return fmt.Sprintf("%s:%d", d.IP, d.Port)
}

func formatBool(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
