package main

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/mtzanidakis/swarmchat/internal/config"
	"github.com/mtzanidakis/swarmchat/internal/store"
)

const (
	archivePrefix   = "swarmchat"
	dbEntry         = "swarmchat.db"
	manifestEntry   = "manifest.json"
	archiveFileMode = 0o644
)

type manifest struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	StorePath string    `json:"store_path"`
}

func runBackup(args []string) error {
	var outputPath string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -f")
			}
			i++
			outputPath = args[i]
		}
	}

	if outputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: swarmchat backup -f <output.tar.zst>\n")
		return fmt.Errorf("missing -f flag")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	size, err := backupStore(cfg.Store, outputPath)
	if err != nil {
		return err
	}

	fmt.Printf("Backup complete: %s, %s\n", cfg.Store.Path, formatSize(size))
	return nil
}

// backupStore snapshots the database and archives the snapshot at outputPath.
func backupStore(cfg config.StoreConfig, outputPath string) (int64, error) {
	db, err := store.New(cfg)
	if err != nil {
		return 0, fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	tmp, err := os.MkdirTemp("", "swarmchat-backup-")
	if err != nil {
		return 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	snapshot := filepath.Join(tmp, dbEntry)
	slog.Info("snapshotting store", "path", cfg.Path)
	if err := db.Snapshot(snapshot); err != nil {
		return 0, err
	}

	m := manifest{Version: version, CreatedAt: time.Now().UTC(), StorePath: cfg.Path}
	if err := writeArchive(outputPath, snapshot, m); err != nil {
		return 0, err
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func writeArchive(outputPath, dbPath string, m manifest) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	defer zw.Close()

	tw := tar.NewWriter(zw)
	defer tw.Close()

	if err := tw.WriteHeader(&tar.Header{
		Name:     archivePrefix + "/",
		Typeflag: tar.TypeDir,
		Mode:     0o755,
		ModTime:  m.CreatedAt,
	}); err != nil {
		return fmt.Errorf("write tar header: %w", err)
	}

	meta, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := tw.WriteHeader(&tar.Header{
		Name:    path.Join(archivePrefix, manifestEntry),
		Mode:    archiveFileMode,
		Size:    int64(len(meta)),
		ModTime: m.CreatedAt,
	}); err != nil {
		return fmt.Errorf("write tar header: %w", err)
	}
	if _, err := tw.Write(meta); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	db, err := os.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer db.Close()
	info, err := db.Stat()
	if err != nil {
		return fmt.Errorf("stat snapshot: %w", err)
	}
	if err := tw.WriteHeader(&tar.Header{
		Name:    path.Join(archivePrefix, dbEntry),
		Mode:    archiveFileMode,
		Size:    info.Size(),
		ModTime: m.CreatedAt,
	}); err != nil {
		return fmt.Errorf("write tar header: %w", err)
	}
	if _, err := io.Copy(tw, db); err != nil {
		return fmt.Errorf("write tar data: %w", err)
	}

	// Close everything explicitly to catch write errors
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zstd: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

func runRestore(args []string) error {
	var inputPath string
	overwrite := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -f")
			}
			i++
			inputPath = args[i]
		case "-overwrite":
			overwrite = true
		}
	}

	if inputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: swarmchat restore -f <backup.tar.zst> [-overwrite]\n")
		return fmt.Errorf("missing -f flag")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := restoreStore(inputPath, cfg.Store.Path, overwrite); err != nil {
		return err
	}

	fmt.Printf("Restore complete: %s\n", cfg.Store.Path)
	return nil
}

// restoreStore extracts the archived database to destPath. The gateway must
// not be running.
func restoreStore(inputPath, destPath string, overwrite bool) error {
	entries, err := scanArchive(inputPath)
	if err != nil {
		return fmt.Errorf("scan archive: %w", err)
	}
	if !slices.Contains(entries, dbEntry) {
		return fmt.Errorf("archive contains no %s", dbEntry)
	}

	if _, err := os.Stat(destPath); err == nil && !overwrite {
		return fmt.Errorf("store %s already exists, add -overwrite to replace it", destPath)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}
		if rel, ok := splitArchivePath(hdr.Name); !ok || rel != dbEntry {
			continue
		}

		tmp := destPath + ".restore"
		out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, archiveFileMode)
		if err != nil {
			return fmt.Errorf("create %s: %w", tmp, err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			os.Remove(tmp)
			return fmt.Errorf("extract database: %w", err)
		}
		if err := out.Close(); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("close %s: %w", tmp, err)
		}

		// Stale WAL files would be replayed over the restored database
		for _, suffix := range []string{"-wal", "-shm"} {
			if err := os.Remove(destPath + suffix); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove %s: %w", destPath+suffix, err)
			}
		}
		if err := os.Rename(tmp, destPath); err != nil {
			return fmt.Errorf("replace store: %w", err)
		}
		slog.Info("store restored", "path", destPath)
		return nil
	}
	return fmt.Errorf("archive contains no %s", dbEntry)
}

// scanArchive lists the entries under the archive prefix without extracting
// file data.
func scanArchive(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	tr := tar.NewReader(zr)

	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if rel, ok := splitArchivePath(hdr.Name); ok && rel != "" {
			names = append(names, rel)
		}
	}

	return names, nil
}

// splitArchivePath strips the archive prefix: "swarmchat/swarmchat.db" becomes
// "swarmchat.db". Entries outside the prefix are rejected.
func splitArchivePath(name string) (string, bool) {
	name = strings.TrimLeft(name, "./")
	rest, ok := strings.CutPrefix(name, archivePrefix+"/")
	if !ok {
		return "", name == archivePrefix
	}
	if strings.Contains(rest, "..") {
		return "", false
	}
	return strings.TrimSuffix(rest, "/"), true
}

func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
