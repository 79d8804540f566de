package program

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/gekko3d/deferred/renderer/rt/gpu"
)

type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}

// Program is one compiled variant of a shader file.
type Program struct {
	Handle             gpu.Handle
	Filepath           string
	Name               string
	LastWriteTimestamp int64
	Inputs             []gpu.VertexInput
	// Includes lists the files pulled in by #include, in first-use order.
	Includes []string
	Textures map[string]uint32
	// Uniforms maps uniform block names to the slot they are declared on.
	Uniforms map[string]uint32
	State    gpu.RenderState
	// Err holds the diagnostics of the last failed compile, nil when it succeeded.
	Err error
}

type LoadOption func(*Program)

func WithRenderState(state gpu.RenderState) LoadOption {
	return func(p *Program) { p.State = state }
}

type Registry struct {
	dev      gpu.Device
	files    FileSource
	log      Logger
	programs []Program
	watcher  *Watcher
	warned   map[string]bool
}

func NewRegistry(dev gpu.Device, files FileSource, log Logger) *Registry {
	if log == nil {
		log = nopLogger{}
	}
	return &Registry{
		dev:    dev,
		files:  files,
		log:    log,
		warned: map[string]bool{},
	}
}

// Load compiles the variant of filepath selected by variant and returns its
// registry index. The index is returned even when compilation fails.
func (r *Registry) Load(file, variant string, opts ...LoadOption) uint32 {
	p := Program{
		Filepath: file,
		Name:     variant,
	}
	for _, opt := range opts {
		opt(&p)
	}
	r.compile(&p)
	r.programs = append(r.programs, p)
	if r.watcher != nil {
		r.watchProgram(&p)
	}
	return uint32(len(r.programs) - 1)
}

func (r *Registry) Get(idx uint32) *Program { return &r.programs[idx] }
func (r *Registry) Count() int              { return len(r.programs) }

func (r *Registry) stageSource(p *Program, src, stage string) (string, error) {
	dir := filepath.Dir(p.Filepath)
	header := VersionHeader + "\n#define " + p.Name + "\n#define " + stage + "\n"
	return Preprocess(header+src, func(name string) (string, error) {
		path := filepath.Join(dir, name)
		data, err := r.files.ReadFile(path)
		if err != nil {
			path = name
			data, err = r.files.ReadFile(path)
		}
		if err == nil && !slices.Contains(p.Includes, path) {
			p.Includes = append(p.Includes, path)
		}
		return string(data), err
	})
}

// sourceTime is the newest modification time of the program file and its includes.
func (r *Registry) sourceTime(p *Program) int64 {
	newest := r.files.ModTime(p.Filepath)
	for _, inc := range p.Includes {
		if t := r.files.ModTime(inc); t > newest {
			newest = t
		}
	}
	return newest
}

func (r *Registry) compile(p *Program) {
	p.Err = nil
	p.Includes = nil

	data, err := r.files.ReadFile(p.Filepath)
	if err != nil {
		r.log.Errorf("shader %s: %v", p.Filepath, err)
	}
	vs, err := r.stageSource(p, string(data), "VERTEX")
	if err != nil {
		r.log.Errorf("shader %s (%s) vertex preprocess: %v", p.Filepath, p.Name, err)
	}
	fs, err := r.stageSource(p, string(data), "FRAGMENT")
	if err != nil {
		r.log.Errorf("shader %s (%s) fragment preprocess: %v", p.Filepath, p.Name, err)
	}
	p.LastWriteTimestamp = r.sourceTime(p)

	p.Inputs = ReflectInputs(vs)
	p.Textures = ReflectTextures(fs)
	p.Uniforms = ReflectUniforms(vs + "\n" + fs)

	p.Handle, p.Err = r.dev.CreateProgram(gpu.ProgramDescriptor{
		Label:          p.Name,
		VertexSource:   vs,
		FragmentSource: fs,
		State:          p.State,
	})
	if p.Err != nil {
		r.log.Errorf("program %s (%s) failed to build:\n%v", p.Filepath, p.Name, p.Err)
		return
	}
	r.log.Debugf("program %s (%s) built as handle %d", p.Filepath, p.Name, p.Handle)
}

// PollHotReload rebuilds every program whose source file, or any file it
// includes, is newer than the version it was built from. Indices are kept; handles change. It returns the
// number of programs rebuilt.
func (r *Registry) PollHotReload() int {
	var dirty map[string]bool
	if r.watcher != nil {
		dirty = r.watcher.Drain()
	}
	reloaded := 0
	for i := range r.programs {
		p := &r.programs[i]
		if r.watcher != nil && !r.touched(p, dirty) {
			continue
		}
		if r.sourceTime(p) <= p.LastWriteTimestamp {
			continue
		}
		old := p.Handle
		r.dev.DeleteProgram(p.Handle)
		r.compile(p)
		if r.watcher != nil {
			r.watchProgram(p)
		}
		r.log.Infof("reloaded %s (%s): handle %d -> %d", p.Filepath, p.Name, old, p.Handle)
		reloaded++
	}
	return reloaded
}

// TextureUnit looks up the unit a texture variable of program idx samples.
// A missing name is reported once per program build and is not an error.
func (r *Registry) TextureUnit(idx uint32, name string) (uint32, bool) {
	p := &r.programs[idx]
	unit, ok := p.Textures[name]
	if !ok {
		key := fmt.Sprintf("%s/%s/%d", p.Name, name, p.Handle)
		if !r.warned[key] {
			r.warned[key] = true
			r.log.Warnf("uniform %s not found in program %s", name, p.Name)
		}
	}
	return unit, ok
}

// UniformBlock looks up the slot a uniform block of program idx is declared
// on. Like TextureUnit, a missing block is reported once per program build.
func (r *Registry) UniformBlock(idx uint32, name string) (uint32, bool) {
	p := &r.programs[idx]
	slot, ok := p.Uniforms[name]
	if !ok {
		key := fmt.Sprintf("%s/%s/%d", p.Name, name, p.Handle)
		if !r.warned[key] {
			r.warned[key] = true
			r.log.Warnf("uniform block %s not found in program %s", name, p.Name)
		}
	}
	return slot, ok
}

type resolver interface {
	Resolve(path string) string
}

func (r *Registry) resolve(file string) string {
	if res, ok := r.files.(resolver); ok {
		return res.Resolve(file)
	}
	return filepath.Clean(file)
}

// Watch attaches a file watcher so PollHotReload only stats files that changed.
func (r *Registry) Watch(w *Watcher) {
	r.watcher = w
	for i := range r.programs {
		r.watchProgram(&r.programs[i])
	}
}

func (r *Registry) watchProgram(p *Program) {
	r.watch(p.Filepath)
	for _, inc := range p.Includes {
		r.watch(inc)
	}
}

func (r *Registry) touched(p *Program, dirty map[string]bool) bool {
	if dirty[r.resolve(p.Filepath)] {
		return true
	}
	for _, inc := range p.Includes {
		if dirty[r.resolve(inc)] {
			return true
		}
	}
	return false
}

func (r *Registry) watch(file string) {
	if err := r.watcher.Add(r.resolve(file)); err != nil {
		r.log.Warnf("watch %s: %v", file, err)
	}
}
