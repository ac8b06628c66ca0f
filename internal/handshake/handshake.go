// Package handshake lets independently launched processes discover each
// other's endpoints through role files in a run-scoped scratch directory.
//
// A publisher writes one file named after its role. A connector waits for the
// file, claims it by rename, reads it and deletes it, so every descriptor is
// consumed exactly once.
package handshake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/nvandessel/cosim/internal/pathutil"
)

// ErrAlreadyPublished is returned when a role file already exists.
var ErrAlreadyPublished = errors.New("role already published")

// ErrInvalidRole is returned for role ids that are not plain file names.
var ErrInvalidRole = errors.New("invalid role id")

// TimeoutError reports a role that was not published in time.
type TimeoutError struct {
	Role    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("handshake timeout: role %s not published within %v", e.Role, e.Timeout)
}

// Descriptor is what a publisher hands to its peer.
type Descriptor struct {
	Role        string    `json:"role"`
	Token       string    `json:"token"`
	PID         int       `json:"pid,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Channel is a rendezvous between two processes.
type Channel interface {
	Publish(role string, d Descriptor) error
	Connect(ctx context.Context, role string, timeout time.Duration) (Descriptor, error)
}

var roleRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidateRole checks that role is usable as a file name.
func ValidateRole(role string) error {
	if !roleRe.MatchString(role) || strings.Contains(role, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return nil
}

// FileChannel is a Channel over a directory. It keeps no state between calls.
type FileChannel struct {
	dir    string
	poll   time.Duration
	logger *slog.Logger
}

// NewFileChannel creates dir if needed. poll is the fallback polling period
// used alongside file notifications.
func NewFileChannel(dir string, poll time.Duration, logger *slog.Logger) (*FileChannel, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating handshake directory: %w", err)
	}
	if poll <= 0 {
		poll = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FileChannel{dir: dir, poll: poll, logger: logger}, nil
}

// Dir returns the scratch directory.
func (c *FileChannel) Dir() string { return c.dir }

func (c *FileChannel) rolePath(role string) (string, error) {
	if err := ValidateRole(role); err != nil {
		return "", err
	}
	path, err := pathutil.Confine(c.dir, role)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRole, err)
	}
	return path, nil
}

// Publish writes the descriptor under role. The file appears complete or not
// at all, and a second publish for the same role fails.
func (c *FileChannel) Publish(role string, d Descriptor) error {
	path, err := c.rolePath(role)
	if err != nil {
		return err
	}

	d.Role = role
	if d.PID == 0 {
		d.PID = os.Getpid()
	}
	if d.PublishedAt.IsZero() {
		d.PublishedAt = time.Now().UTC()
	}
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshaling descriptor: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".publish-*.tmp")
	if err != nil {
		return fmt.Errorf("creating descriptor temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing descriptor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing descriptor: %w", err)
	}

	if err := os.Link(tmpName, path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w", role, ErrAlreadyPublished)
		}
		return fmt.Errorf("publishing %s: %w", role, err)
	}
	c.logger.Debug("handshake published", "role", role)
	return nil
}

// Connect waits until role is published and consumes its descriptor.
// A timeout of zero or less waits until ctx is done. On timeout or
// cancellation any descriptor for role is removed.
func (c *FileChannel) Connect(ctx context.Context, role string, timeout time.Duration) (Descriptor, error) {
	path, err := c.rolePath(role)
	if err != nil {
		return Descriptor{}, err
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var events chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.logger.Warn("file notifications unavailable, polling only", "error", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(c.dir); err != nil {
			c.logger.Warn("watching handshake directory failed, polling only", "error", err)
		} else {
			events = watcher.Events
		}
	}

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		d, ok, err := c.claim(role, path)
		if err != nil {
			return Descriptor{}, err
		}
		if ok {
			c.logger.Debug("handshake connected", "role", role)
			return d, nil
		}

		select {
		case <-waitCtx.Done():
			os.Remove(path)
			if ctx.Err() != nil {
				return Descriptor{}, ctx.Err()
			}
			return Descriptor{}, &TimeoutError{Role: role, Timeout: timeout}
		case event, open := <-events:
			if !open {
				events = nil
				continue
			}
			if filepath.Base(event.Name) != role {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
		case <-ticker.C:
		}
	}
}

// claim takes the role file if it is present and non-empty.
func (c *FileChannel) claim(role, path string) (Descriptor, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Descriptor{}, false, nil
		}
		return Descriptor{}, false, fmt.Errorf("reading %s: %w", role, err)
	}
	// A foreign publisher may still be writing.
	if len(strings.TrimSpace(string(data))) == 0 {
		return Descriptor{}, false, nil
	}

	claimed := filepath.Join(c.dir, ".claimed-"+role+"-"+uuid.NewString())
	if err := os.Rename(path, claimed); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Descriptor{}, false, nil
		}
		return Descriptor{}, false, fmt.Errorf("claiming %s: %w", role, err)
	}
	defer os.Remove(claimed)

	data, err = os.ReadFile(claimed)
	if err != nil {
		return Descriptor{}, false, fmt.Errorf("reading claimed %s: %w", role, err)
	}
	d, err := ParseDescriptor(role, data)
	if err != nil {
		return Descriptor{}, false, err
	}
	return d, true, nil
}

// ParseDescriptor accepts the JSON form written by Publish or a plain-text
// file whose trimmed content is the token.
func ParseDescriptor(role string, data []byte) (Descriptor, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return Descriptor{}, fmt.Errorf("descriptor for %s is empty", role)
	}
	if !strings.HasPrefix(text, "{") {
		return Descriptor{Role: role, Token: text}, nil
	}

	var d Descriptor
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return Descriptor{}, fmt.Errorf("parsing descriptor for %s: %w", role, err)
	}
	if d.Role == "" {
		d.Role = role
	}
	if d.Role != role {
		return Descriptor{}, fmt.Errorf("descriptor in %s names role %s", role, d.Role)
	}
	return d, nil
}

// Pending lists role files currently published and not yet consumed.
func (c *FileChannel) Pending() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}
	var roles []string
	for _, e := range entries {
		if e.Type().IsRegular() && roleRe.MatchString(e.Name()) {
			roles = append(roles, e.Name())
		}
	}
	return roles, nil
}
