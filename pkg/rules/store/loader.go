package store

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"mercator-hq/ganymede/pkg/rules/parse"
)

// LoaderConfig configures rule file discovery.
type LoaderConfig struct {
	// MaxFileSize is the maximum rule file size in bytes
	MaxFileSize int64

	// AllowedExtensions lists the file extensions treated as rule files
	AllowedExtensions []string

	// SkipHidden skips hidden files and directories
	SkipHidden bool

	// FollowSymlinks controls whether symbolic links are followed
	FollowSymlinks bool
}

// DefaultLoaderConfig returns the default loader configuration.
func DefaultLoaderConfig() *LoaderConfig {
	return &LoaderConfig{
		MaxFileSize:       1 * 1024 * 1024,
		AllowedExtensions: []string{".yaml", ".yml"},
		SkipHidden:        true,
		FollowSymlinks:    true,
	}
}

// Loader reads rule files from the file system.
type Loader struct {
	config *LoaderConfig
	parser *parse.Parser
}

// NewLoader creates a loader with the given configuration.
func NewLoader(config *LoaderConfig, parser *parse.Parser) *Loader {
	if config == nil {
		config = DefaultLoaderConfig()
	}
	if parser == nil {
		parser = parse.NewParser().WithMaxFileSize(config.MaxFileSize)
	}
	return &Loader{
		config: config,
		parser: parser,
	}
}

// LoadFile loads and parses a single rule file.
func (l *Loader) LoadFile(path string) (*parse.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{FilePath: path, Message: "file not found", Cause: err}
		}
		if os.IsPermission(err) {
			return nil, &LoadError{FilePath: path, Message: "permission denied", Cause: err}
		}
		return nil, &LoadError{FilePath: path, Message: "failed to access file", Cause: err}
	}

	if !info.Mode().IsRegular() {
		return nil, &LoadError{FilePath: path, Message: "not a regular file"}
	}

	doc, err := l.parser.ParseFile(path)
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "invalid rule file", Cause: err}
	}

	return doc, nil
}

// LoadDirectory loads every rule file under the given directory. Rule
// files feed one shared rule set, so loading is all or nothing: any
// broken file fails the whole load and the caller keeps whatever set it
// had. Files are visited in lexical order, which fixes the definition
// order of the merged rules.
func (l *Loader) LoadDirectory(dir string) ([]*parse.Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{FilePath: dir, Message: "directory not found", Cause: err}
		}
		return nil, &LoadError{FilePath: dir, Message: "failed to access directory", Cause: err}
	}
	if !info.IsDir() {
		return nil, &LoadError{FilePath: dir, Message: "not a directory"}
	}

	ruleFiles, err := l.collectRuleFiles(dir)
	if err != nil {
		return nil, err
	}

	if len(ruleFiles) == 0 {
		return nil, &LoadError{FilePath: dir, Message: "no rule files found in directory"}
	}

	var docs []*parse.Document
	errList := &ErrorList{}

	for _, filePath := range ruleFiles {
		doc, err := l.LoadFile(filePath)
		if err != nil {
			errList.Add(err)
			continue
		}
		docs = append(docs, doc)
	}

	if errList.HasErrors() {
		return nil, errList
	}

	return docs, nil
}

// IsDirectory checks if the given path is a directory.
func (l *Loader) IsDirectory(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, &LoadError{FilePath: path, Message: "path does not exist", Cause: err}
		}
		return false, &LoadError{FilePath: path, Message: "failed to access path", Cause: err}
	}
	return info.IsDir(), nil
}

// collectRuleFiles walks the directory and returns rule file paths in
// lexical order.
func (l *Loader) collectRuleFiles(dir string) ([]string, error) {
	var ruleFiles []string
	visited := make(map[string]bool)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if l.config.SkipHidden && strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			if !l.config.FollowSymlinks {
				return nil
			}

			realPath, err := filepath.EvalSymlinks(path)
			if err != nil {
				return &LoadError{FilePath: path, Message: "failed to resolve symlink", Cause: err}
			}

			if visited[realPath] {
				return &LoadError{FilePath: path, Message: "symlink loop detected"}
			}
			visited[realPath] = true

			if !l.hasValidExtension(realPath) {
				return nil
			}

			ruleFiles = append(ruleFiles, path)
			return nil
		}

		if !l.hasValidExtension(path) {
			return nil
		}

		ruleFiles = append(ruleFiles, path)
		return nil
	})

	if err != nil {
		if loadErr, ok := err.(*LoadError); ok {
			return nil, loadErr
		}
		return nil, &LoadError{FilePath: dir, Message: "failed to walk directory", Cause: err}
	}

	return ruleFiles, nil
}

// hasValidExtension checks if the file has a rule file extension.
func (l *Loader) hasValidExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, validExt := range l.config.AllowedExtensions {
		if ext == strings.ToLower(validExt) {
			return true
		}
	}
	return false
}
