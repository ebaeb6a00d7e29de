package threatintel

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"grimm.is/droplist/internal/clock"
	"grimm.is/droplist/internal/errors"
)

// Cache artifact names inside the cache directory.
const (
	RawFile       = "feed.raw"
	TimestampFile = "feed.timestamp"
	EntriesFile   = "feed.entries"
)

// Cache is the on-disk copy of the last fetched feed.
//
// The three artifacts form one logical unit: the raw blob is replaced first
// and is never authoritative on its own; the timestamp and entry list are
// replaced together, after the raw blob, and only from a complete parse.
// Every file is written to a temp file and renamed into place.
type Cache struct {
	dir string
}

// NewCache returns a cache rooted at dir. Call Init before use.
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Init creates the cache directory.
func (c *Cache) Init() error {
	if err := os.MkdirAll(c.dir, 0750); err != nil {
		return errors.Wrapf(err, errors.KindCache, "failed to create cache directory %s", c.dir)
	}
	return nil
}

func (c *Cache) path(name string) string {
	return filepath.Join(c.dir, name)
}

// WriteRaw replaces the raw feed blob.
func (c *Cache) WriteRaw(data []byte) error {
	if err := writeFileAtomic(c.path(RawFile), data); err != nil {
		return errors.Wrap(err, errors.KindCache, "failed to write raw feed")
	}
	return nil
}

// ReadRaw returns the raw feed blob.
func (c *Cache) ReadRaw() ([]byte, error) {
	data, err := os.ReadFile(c.path(RawFile))
	if err != nil {
		return nil, errors.Wrap(err, errors.KindCache, "failed to read raw feed")
	}
	return data, nil
}

// Commit replaces the entry list and the last-fetch timestamp as a pair.
// Both are staged before either is renamed, so a failure while staging
// leaves the previous pair intact.
func (c *Cache) Commit(fetchedAt time.Time, entries []string) error {
	var buf bytes.Buffer
	for _, e := range entries {
		buf.WriteString(e)
		buf.WriteByte('\n')
	}

	entriesTmp, err := stage(c.path(EntriesFile), buf.Bytes())
	if err != nil {
		return errors.Wrap(err, errors.KindCache, "failed to stage entry list")
	}
	tsTmp, err := stage(c.path(TimestampFile), []byte(strconv.FormatInt(fetchedAt.Unix(), 10)+"\n"))
	if err != nil {
		os.Remove(entriesTmp)
		return errors.Wrap(err, errors.KindCache, "failed to stage timestamp")
	}

	if err := os.Rename(entriesTmp, c.path(EntriesFile)); err != nil {
		os.Remove(entriesTmp)
		os.Remove(tsTmp)
		return errors.Wrap(err, errors.KindCache, "failed to replace entry list")
	}
	if err := os.Rename(tsTmp, c.path(TimestampFile)); err != nil {
		os.Remove(tsTmp)
		return errors.Wrap(err, errors.KindCache, "failed to replace timestamp")
	}
	return nil
}

// Entries returns the processed entry list. A missing or corrupt list is a
// KindCache error.
func (c *Cache) Entries() ([]string, error) {
	data, err := os.ReadFile(c.path(EntriesFile))
	if err != nil {
		return nil, errors.Wrap(err, errors.KindCache, "failed to read entry list")
	}

	entries := []string{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" || strings.ContainsAny(text, " \t\r") {
			return nil, errors.Errorf(errors.KindCache, "corrupt entry list: line %d: %q", line, text)
		}
		entries = append(entries, text)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.KindCache, "corrupt entry list")
	}
	return entries, nil
}

// LastFetch returns the time of the last successful fetch, or nil when no
// usable data exists. A timestamp without a readable entry list counts as no
// data, so the next update is allowed to fetch.
func (c *Cache) LastFetch() *time.Time {
	data, err := os.ReadFile(c.path(TimestampFile))
	if err != nil {
		return nil
	}
	sec, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return nil
	}
	if _, err := c.Entries(); err != nil {
		return nil
	}
	t := clock.FromUnix(sec)
	return &t
}

// stage writes data to a temp file next to path and returns its name.
func stage(path string, data []byte) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", err
	}
	name := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	if err := os.Chmod(name, 0640); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("chmod %s: %w", name, err)
	}
	return name, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := stage(path, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
