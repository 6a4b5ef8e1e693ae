package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/chatspace/chatspace/internal/store"
	"github.com/chatspace/chatspace/pkg/config"
)

type appStatus struct {
	GeneratedAt     time.Time `json:"generatedAt"`
	Environment     string    `json:"environment"`
	Port            string    `json:"port"`
	DatabasePath    string    `json:"databasePath"`
	FileStoragePath string    `json:"fileStoragePath"`
	Users           int64     `json:"users"`
	Messages        int64     `json:"messages"`
	FriendRequests  int64     `json:"friendRequests"`
	Files           int64     `json:"files"`
	DBSize          int64     `json:"dbSize"`
	UploadDirSize   int64     `json:"uploadDirSize"`
	UploadFileCount int64     `json:"uploadFileCount"`
	DBMetricsReady  bool      `json:"dbMetricsReady"`
	DBWarning       string    `json:"dbWarning,omitempty"`
}

type statusOptions struct {
	JSON bool
}

func parseStatusArgs(args []string) (statusOptions, error) {
	opts := statusOptions{}
	for _, arg := range args {
		switch arg {
		case "--json", "-j":
			opts.JSON = true
		default:
			return opts, fmt.Errorf("unknown status flag: %s", arg)
		}
	}
	return opts, nil
}

func runStatus(cfg *config.Config, out io.Writer, args []string) error {
	opts, err := parseStatusArgs(args)
	if err != nil {
		return err
	}

	status := collectStatus(cfg)
	if opts.JSON {
		return printStatusJSON(out, status)
	}
	printStatus(out, status)
	return nil
}

// collectStatus reads the durable store directly. A process running on
// the in-memory fallback cannot be inspected from outside, so a missing
// database surfaces as a warning rather than an error.
func collectStatus(cfg *config.Config) appStatus {
	status := appStatus{
		GeneratedAt:     time.Now(),
		Environment:     cfg.Environment,
		Port:            cfg.Port,
		DatabasePath:    cfg.DatabasePath,
		FileStoragePath: cfg.FileStoragePath,
	}

	if info, err := os.Stat(cfg.DatabasePath); err == nil {
		status.DBSize = info.Size()
	}

	if bytes, files, err := dirUsage(cfg.FileStoragePath); err == nil {
		status.UploadDirSize = bytes
		status.UploadFileCount = files
	}

	if _, err := os.Stat(cfg.DatabasePath); err != nil {
		status.DBWarning = fmt.Sprintf("database unavailable: %v", err)
		return status
	}

	st, err := store.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		status.DBWarning = fmt.Sprintf("database unavailable: %v", err)
		return status
	}
	defer st.Close()

	users, messages, requests, files, err := st.Counts()
	if err != nil {
		status.DBWarning = fmt.Sprintf("could not read database stats: %v", err)
		return status
	}

	status.Users = users
	status.Messages = messages
	status.FriendRequests = requests
	status.Files = files
	status.DBMetricsReady = true
	return status
}

func dirUsage(root string) (int64, int64, error) {
	var totalBytes int64
	var totalFiles int64

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		totalBytes += info.Size()
		totalFiles++
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	return totalBytes, totalFiles, nil
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func printStatus(out io.Writer, status appStatus) {
	fmt.Fprintln(out, "Chatspace Status")
	fmt.Fprintf(out, "Generated at: %s\n", status.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Environment : %s\n", status.Environment)
	fmt.Fprintf(out, "Port        : %s\n", status.Port)
	fmt.Fprintf(out, "Database    : %s (%s)\n", status.DatabasePath, formatBytes(status.DBSize))
	fmt.Fprintf(out, "Uploads dir : %s\n", status.FileStoragePath)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Data")
	if status.DBMetricsReady {
		fmt.Fprintf(out, "  Users           : %d\n", status.Users)
		fmt.Fprintf(out, "  Messages        : %d\n", status.Messages)
		fmt.Fprintf(out, "  Friend requests : %d\n", status.FriendRequests)
		fmt.Fprintf(out, "  File records    : %d\n", status.Files)
	} else {
		fmt.Fprintln(out, "  Database metrics: n/a")
	}
	if status.DBWarning != "" {
		fmt.Fprintf(out, "  Warning         : %s\n", status.DBWarning)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Storage")
	fmt.Fprintf(out, "  Uploads         : %d files, %s\n", status.UploadFileCount, formatBytes(status.UploadDirSize))
}

func printStatusJSON(out io.Writer, status appStatus) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}
