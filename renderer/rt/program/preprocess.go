package program

import (
	"fmt"
	"regexp"
	"strings"
)

// VersionHeader is prepended to every stage by the loader. WGSL has no version
// directive, so the preprocessor consumes it.
const VersionHeader = "#version wgsl"

const maxIncludeDepth = 16

type condFrame struct {
	parentActive bool
	active       bool
	taken        bool
	sawElse      bool
}

type preprocessor struct {
	defines map[string]string
	include func(name string) (string, error)
	stack   []condFrame
	out     []string
}

// Preprocess resolves #define, #undef, #ifdef, #ifndef, #if, #elif, #else,
// #endif and #include "file" in src. Lines removed by a directive are kept as
// blank lines, so diagnostics point at the right source line up to the first
// #include; included text shifts every line after it.
func Preprocess(src string, include func(name string) (string, error)) (string, error) {
	p := &preprocessor{
		defines: map[string]string{},
		include: include,
	}
	if err := p.run(src, 0); err != nil {
		return strings.Join(p.out, "\n"), err
	}
	if len(p.stack) != 0 {
		return strings.Join(p.out, "\n"), fmt.Errorf("unterminated conditional block (%d open)", len(p.stack))
	}
	return p.substitute(strings.Join(p.out, "\n")), nil
}

func (p *preprocessor) active() bool {
	if len(p.stack) == 0 {
		return true
	}
	return p.stack[len(p.stack)-1].active
}

func (p *preprocessor) run(src string, depth int) error {
	for n, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			if p.active() {
				p.out = append(p.out, line)
			} else {
				p.out = append(p.out, "")
			}
			continue
		}
		p.out = append(p.out, "")
		if err := p.directive(trimmed, depth); err != nil {
			return fmt.Errorf("line %d: %w", n+1, err)
		}
	}
	return nil
}

func (p *preprocessor) directive(line string, depth int) error {
	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case "version":
		return nil
	case "define":
		if !p.active() {
			return nil
		}
		key, value, _ := strings.Cut(rest, " ")
		if key == "" {
			return fmt.Errorf("#define without a name")
		}
		p.defines[key] = strings.TrimSpace(value)
	case "undef":
		if p.active() {
			delete(p.defines, rest)
		}
	case "ifdef":
		p.push(p.isDefined(rest))
	case "ifndef":
		p.push(!p.isDefined(rest))
	case "if":
		ok, err := p.eval(rest)
		if err != nil {
			return err
		}
		p.push(ok)
	case "elif":
		if len(p.stack) == 0 {
			return fmt.Errorf("#elif without #if")
		}
		ok, err := p.eval(rest)
		if err != nil {
			return err
		}
		top := &p.stack[len(p.stack)-1]
		if top.sawElse {
			return fmt.Errorf("#elif after #else")
		}
		top.active = top.parentActive && !top.taken && ok
		top.taken = top.taken || top.active
	case "else":
		if len(p.stack) == 0 {
			return fmt.Errorf("#else without #if")
		}
		top := &p.stack[len(p.stack)-1]
		if top.sawElse {
			return fmt.Errorf("duplicate #else")
		}
		top.sawElse = true
		top.active = top.parentActive && !top.taken
		top.taken = true
	case "endif":
		if len(p.stack) == 0 {
			return fmt.Errorf("#endif without #if")
		}
		p.stack = p.stack[:len(p.stack)-1]
	case "include":
		if !p.active() {
			return nil
		}
		file := strings.Trim(rest, `"`)
		if file == "" || !strings.HasPrefix(rest, `"`) || !strings.HasSuffix(rest, `"`) {
			return fmt.Errorf("malformed #include %s", rest)
		}
		if depth >= maxIncludeDepth {
			return fmt.Errorf("#include %q nested too deeply", file)
		}
		if p.include == nil {
			return fmt.Errorf("#include %q: no include source", file)
		}
		text, err := p.include(file)
		if err != nil {
			return fmt.Errorf("#include %q: %w", file, err)
		}
		if err := p.run(text, depth+1); err != nil {
			return fmt.Errorf("in %s: %w", file, err)
		}
	default:
		return fmt.Errorf("unknown directive #%s", name)
	}
	return nil
}

func (p *preprocessor) push(cond bool) {
	parent := p.active()
	p.stack = append(p.stack, condFrame{
		parentActive: parent,
		active:       parent && cond,
		taken:        cond,
	})
}

func (p *preprocessor) isDefined(name string) bool {
	_, ok := p.defines[strings.TrimSpace(name)]
	return ok
}

// eval handles `defined(X)`, `!defined(X)`, bare names and literals joined by || and &&.
func (p *preprocessor) eval(expr string) (bool, error) {
	for _, alt := range strings.Split(expr, "||") {
		all := true
		for _, term := range strings.Split(alt, "&&") {
			ok, err := p.term(strings.TrimSpace(term))
			if err != nil {
				return false, err
			}
			all = all && ok
		}
		if all {
			return true, nil
		}
	}
	return false, nil
}

func (p *preprocessor) term(term string) (bool, error) {
	if term == "" {
		return false, fmt.Errorf("empty #if expression")
	}
	if strings.HasPrefix(term, "!") {
		ok, err := p.term(strings.TrimSpace(term[1:]))
		return !ok, err
	}
	if strings.HasPrefix(term, "defined(") && strings.HasSuffix(term, ")") {
		return p.isDefined(term[len("defined(") : len(term)-1]), nil
	}
	switch term {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	value, ok := p.defines[term]
	return ok && value != "0", nil
}

var identRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// substitute replaces identifiers that name a valued define.
func (p *preprocessor) substitute(src string) string {
	valued := false
	for _, v := range p.defines {
		if v != "" {
			valued = true
			break
		}
	}
	if !valued {
		return src
	}
	return identRe.ReplaceAllStringFunc(src, func(id string) string {
		if v, ok := p.defines[id]; ok && v != "" {
			return v
		}
		return id
	})
}
