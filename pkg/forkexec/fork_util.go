package forkexec

import (
	"path"
	"strings"
	"syscall"
)

// prepareExec prepares execve parameters. The candidate paths of argv[0] are
// resolved before fork following execvp: a name with a slash is used as is,
// otherwise each PATH entry is tried in order
func prepareExec(args, env []string) ([]*byte, []*byte, []*byte, error) {
	if len(args) == 0 {
		return nil, nil, nil, syscall.EINVAL
	}
	candidates, err := syscall.SlicePtrFromStrings(lookPathCandidates(args[0], env))
	if err != nil {
		return nil, nil, nil, err
	}
	// make exec args
	argv, err := syscall.SlicePtrFromStrings(args)
	if err != nil {
		return nil, nil, nil, err
	}
	// make env
	envv, err := syscall.SlicePtrFromStrings(env)
	if err != nil {
		return nil, nil, nil, err
	}
	// the slices are nil terminated, drop it from the candidates
	return candidates[:len(candidates)-1], argv, envv, nil
}

// lookPathCandidates lists the paths execvp would try for file
func lookPathCandidates(file string, env []string) []string {
	if file == "" {
		return []string{file}
	}
	if strings.Contains(file, "/") {
		return []string{file}
	}
	p := DefaultPath
	for _, e := range env {
		if v, ok := strings.CutPrefix(e, "PATH="); ok {
			p = v
			break
		}
	}
	var ret []string
	for _, dir := range strings.Split(p, ":") {
		if dir == "" {
			// unix shell semantics: path element "" means "."
			dir = "."
		}
		ret = append(ret, path.Join(dir, file))
	}
	return ret
}

// syscallStringFromString prepares *byte if string is not empty, other wise nil
func syscallStringFromString(str string) (*byte, error) {
	if str != "" {
		return syscall.BytePtrFromString(str)
	}
	return nil, nil
}
