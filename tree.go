package remotezip

import (
	"encoding/json"
	"strings"
)

// Node is an element of the archive tree: either a *File or a *Folder.
type Node interface {
	NodeName() string
	node()
}

// File is a leaf of the archive tree.
type File struct {
	// Name is the final path segment.
	Name  string
	Entry Entry
}

// Folder is an inner node of the archive tree. Children are kept in the
// order they were met in the Central Directory.
type Folder struct {
	Name string
	// Path is the full folder path including the trailing slash.
	Path     string
	Children []Node
}

func (f *File) NodeName() string   { return f.Name }
func (f *Folder) NodeName() string { return f.Name }
func (*File) node()                {}
func (*Folder) node()              {}

func (f *File) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name              string `json:"name"`
		Type              string `json:"type"`
		Size              uint32 `json:"size"`
		CompressedSize    uint32 `json:"compressedSize"`
		Date              string `json:"date"`
		Encrypted         bool   `json:"encrypted"`
		CompressionMethod uint16 `json:"compressionMethod"`
	}{
		Name:              f.Name,
		Type:              "file",
		Size:              f.Entry.UncompressedSize,
		CompressedSize:    f.Entry.CompressedSize,
		Date:              f.Entry.Modified.String(),
		Encrypted:         f.Entry.Encrypted,
		CompressionMethod: f.Entry.Method,
	})
}

func (f *Folder) MarshalJSON() ([]byte, error) {
	children := f.Children
	if children == nil {
		children = []Node{}
	}
	return json.Marshal(struct {
		Name     string `json:"name"`
		Type     string `json:"type"`
		Children []Node `json:"children"`
	}{
		Name:     f.Name,
		Type:     "folder",
		Children: children,
	})
}

// treeBuilder assembles the folder hierarchy. Folders are indexed by
// their full path with a trailing slash, so each folder exists once.
type treeBuilder struct {
	roots   []Node
	folders map[string]*Folder
}

// buildTree turns the flat entry list into a tree. Folders named by
// folder entries are created first, then files are attached, creating
// any folders the archive did not list explicitly.
func buildTree(entries []Entry) []Node {
	tb := &treeBuilder{folders: make(map[string]*Folder)}
	for i := range entries {
		if entries[i].IsDir() {
			tb.folder(splitPath(entries[i].Name))
		}
	}
	for i := range entries {
		e := &entries[i]
		if e.IsDir() {
			continue
		}
		segs := splitPath(e.Name)
		name := ""
		if n := len(segs); n > 0 {
			name = segs[n-1]
			segs = segs[:n-1]
		}
		f := &File{Name: name, Entry: *e}
		if len(segs) == 0 {
			tb.roots = append(tb.roots, f)
			continue
		}
		parent := tb.folder(segs)
		parent.Children = append(parent.Children, f)
	}
	return tb.roots
}

// folder returns the folder for the given path segments, creating it
// and any missing ancestors.
func (tb *treeBuilder) folder(segs []string) *Folder {
	var parent *Folder
	path := ""
	for _, seg := range segs {
		path += seg + "/"
		f, ok := tb.folders[path]
		if !ok {
			f = &Folder{Name: seg, Path: path}
			tb.folders[path] = f
			if parent == nil {
				tb.roots = append(tb.roots, f)
			} else {
				parent.Children = append(parent.Children, f)
			}
		}
		parent = f
	}
	return parent
}

// splitPath splits an archive path on slashes, dropping empty segments.
func splitPath(name string) []string {
	return strings.FieldsFunc(name, func(r rune) bool { return r == '/' })
}
