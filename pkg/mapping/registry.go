package mapping

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/fsnotify.v1"
	"gopkg.in/yaml.v3"
)

// Registry manages mapping specs. Built-in dataset tables are registered at
// startup; a directory of YAML spec files may extend or override them
// without rebuilding, optionally watched for changes.
type Registry struct {
	mu       sync.RWMutex
	specs    map[string]*Spec
	fromFile map[string]struct{}
	dir      string
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	onChange func(event string, spec *Spec)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		specs:    make(map[string]*Spec),
		fromFile: make(map[string]struct{}),
	}
}

// Register validates and adds a spec. A spec with the same name replaces the
// previous one only when its version differs.
func (r *Registry) Register(spec *Spec) error {
	if spec == nil {
		return fmt.Errorf("mapping spec cannot be nil")
	}
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid mapping spec: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.specs[spec.Name]; ok {
		if existing.Version == spec.Version {
			return fmt.Errorf("mapping spec %q version %s already registered", spec.Name, spec.Version)
		}
	}
	r.specs[spec.Name] = spec
	return nil
}

// Get returns a spec by name.
func (r *Registry) Get(name string) (*Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

// List returns all registered specs sorted by name.
func (r *Registry) List() []*Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]*Spec, 0, len(r.specs))
	for _, spec := range r.specs {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// ListByDataset returns the specs registered for a dataset.
func (r *Registry) ListByDataset(dataset string) []*Spec {
	var specs []*Spec
	for _, spec := range r.List() {
		if spec.Dataset == dataset {
			specs = append(specs, spec)
		}
	}
	return specs
}

// Count returns the number of registered specs.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.specs)
}

// LoadDirectory loads all YAML spec files from a directory. A missing
// directory is not an error; nothing is loaded.
func (r *Registry) LoadDirectory(dir string) error {
	r.dir = dir

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("checking directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var loadErrors []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		if err := r.LoadFile(filepath.Join(dir, name)); err != nil {
			loadErrors = append(loadErrors, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(loadErrors) > 0 {
		return fmt.Errorf("errors loading mapping specs: %s", strings.Join(loadErrors, "; "))
	}
	return nil
}

// LoadFile loads a single YAML spec file.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid mapping spec: %w", err)
	}

	// File-loaded specs replace unconditionally, so a re-save without a
	// version bump still takes effect.
	r.mu.Lock()
	r.specs[spec.Name] = &spec
	r.fromFile[spec.Name] = struct{}{}
	r.mu.Unlock()
	return nil
}

// Reload drops all file-loaded specs and reloads the configured directory.
// Specs registered in code are kept.
func (r *Registry) Reload() error {
	if r.dir == "" {
		return fmt.Errorf("no directory configured for reload")
	}
	r.mu.Lock()
	for name := range r.fromFile {
		delete(r.specs, name)
		delete(r.fromFile, name)
	}
	r.mu.Unlock()
	return r.LoadDirectory(r.dir)
}

// SetOnChange sets a callback invoked when a watched spec file changes.
func (r *Registry) SetOnChange(fn func(event string, spec *Spec)) {
	r.onChange = fn
}

// Watch starts watching the spec directory for changes.
func (r *Registry) Watch() error {
	if r.dir == "" {
		return fmt.Errorf("no directory configured for watching")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	r.watcher = watcher
	r.stopChan = make(chan struct{})

	go r.watchLoop()

	if err := watcher.Add(r.dir); err != nil {
		r.watcher.Close()
		return fmt.Errorf("watching directory %s: %w", r.dir, err)
	}
	return nil
}

// StopWatch stops watching the spec directory.
func (r *Registry) StopWatch() {
	if r.stopChan != nil {
		close(r.stopChan)
	}
	if r.watcher != nil {
		r.watcher.Close()
	}
}

func (r *Registry) watchLoop() {
	for {
		select {
		case <-r.stopChan:
			return

		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".yaml") && !strings.HasSuffix(event.Name, ".yml") {
				continue
			}
			switch {
			case event.Op&fsnotify.Create == fsnotify.Create:
				r.handleFileChange(event.Name, "create")
			case event.Op&fsnotify.Write == fsnotify.Write:
				r.handleFileChange(event.Name, "modify")
			case event.Op&fsnotify.Remove == fsnotify.Remove,
				event.Op&fsnotify.Rename == fsnotify.Rename:
				r.handleFileRemove()
			}

		case _, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (r *Registry) handleFileChange(path string, eventType string) {
	if err := r.LoadFile(path); err != nil {
		return
	}
	if r.onChange != nil {
		base := filepath.Base(path)
		name := strings.TrimSuffix(strings.TrimSuffix(base, ".yaml"), ".yml")
		if spec, ok := r.Get(name); ok {
			r.onChange(eventType, spec)
		}
	}
}

func (r *Registry) handleFileRemove() {
	if err := r.Reload(); err != nil {
		return
	}
	if r.onChange != nil {
		r.onChange("remove", nil)
	}
}
