package engine

import "sync"

// StreamInfo is a snapshot of one tracked stream playlist.
type StreamInfo struct {
	URL             string `json:"url"`
	Channel         string `json:"channel"`
	UseBackupStream bool   `json:"use_backup_stream"`
	IsMidroll       bool   `json:"is_midroll"`
}

type streamRecord struct {
	info            StreamInfo
	backupEncodings string
}

// Registry maps playlist URLs to per-stream ad/backup state. Records live
// until Reset, which happens when the owning player tab navigates away.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*streamRecord
}

func NewRegistry() *Registry {
	return &Registry{streams: make(map[string]*streamRecord)}
}

// Register associates a playlist URL with a channel. Registering an already
// known URL keeps its existing state.
func (r *Registry) Register(url, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.streams[url]; ok {
		return
	}
	r.streams[url] = &streamRecord{info: StreamInfo{URL: url, Channel: channel}}
}

// Lookup returns the current snapshot for a playlist URL.
func (r *Registry) Lookup(url string) (StreamInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.streams[url]
	if !ok {
		return StreamInfo{}, false
	}
	return rec.info, true
}

// ActivateBackup flips a stream to the backup source and caches the backup
// master playlist. The flip is monotonic: once a stream uses the backup
// source it never returns to the primary one, so a second call is a no-op
// and reports false.
func (r *Registry) ActivateBackup(url string, midroll bool, encodings string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.streams[url]
	if !ok || rec.info.UseBackupStream {
		return false
	}
	rec.info.UseBackupStream = true
	rec.info.IsMidroll = midroll
	rec.backupEncodings = encodings
	return true
}

// BackupEncodings returns the cached backup master playlist for a URL.
func (r *Registry) BackupEncodings(url string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.streams[url]
	if !ok {
		return "", false
	}
	return rec.backupEncodings, true
}

// Snapshot returns all tracked streams.
func (r *Registry) Snapshot() []StreamInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]StreamInfo, 0, len(r.streams))
	for _, rec := range r.streams {
		out = append(out, rec.info)
	}
	return out
}

// Len returns the number of tracked streams.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// Reset drops all stream state. No credential state is touched.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams = make(map[string]*streamRecord)
}
