// Package scanner discovers module directories and builds the node list the
// rule engine and remediation orchestrator operate on.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/buildforge/modguard/internal/descriptor"
	"github.com/buildforge/modguard/internal/hierarchy"
	"github.com/buildforge/modguard/internal/logging"
	"github.com/buildforge/modguard/internal/module"
)

// ErrNoRootDescriptor indicates the scan root holds no build descriptor.
var ErrNoRootDescriptor = errors.New("no build descriptor at scan root")

// Tree is the result of one scan: read-only module nodes, created fresh.
type Tree struct {
	// Root is the node at the scan root.
	Root *module.Node

	// Nodes holds every discovered node, ordered by directory path.
	Nodes []*module.Node

	// ByIdentity indexes nodes by artifact identity.
	ByIdentity map[string]*module.Node

	// ByDir indexes nodes by cleaned directory path.
	ByDir map[string]*module.Node
}

// Scanner walks a directory tree and emits module nodes.
type Scanner struct {
	descriptorName string
	classifier     *hierarchy.Classifier
	log            *logging.Logger
}

// New creates a scanner. Empty descriptorName uses the default; nil logger
// discards logs.
func New(descriptorName string, log *logging.Logger) *Scanner {
	if descriptorName == "" {
		descriptorName = descriptor.DefaultFilename
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Scanner{
		descriptorName: descriptorName,
		classifier:     hierarchy.NewClassifier(descriptorName),
		log:            log,
	}
}

// Scan walks root and builds the module tree. Hidden directories and the
// staging area are skipped. Unreadable descriptors yield Unknown-role nodes
// rather than failing the scan.
func (s *Scanner) Scan(ctx context.Context, root string) (*Tree, error) {
	root = filepath.Clean(root)

	tree := &Tree{
		ByIdentity: make(map[string]*module.Node),
		ByDir:      make(map[string]*module.Node),
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.log.Debug(ctx, "skipping unreadable path", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && (strings.HasPrefix(d.Name(), ".") || d.Name() == "target" || d.Name() == "node_modules") {
			return filepath.SkipDir
		}
		if node := s.readNode(ctx, path); node != nil {
			tree.Nodes = append(tree.Nodes, node)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}

	sort.Slice(tree.Nodes, func(i, j int) bool { return tree.Nodes[i].Dir < tree.Nodes[j].Dir })

	for _, n := range tree.Nodes {
		tree.ByDir[n.Dir] = n
		if n.Identity == "" {
			continue
		}
		if prev, ok := tree.ByIdentity[n.Identity]; ok {
			s.log.Warn(ctx, "duplicate module identity",
				zap.String("identity", n.Identity),
				zap.String("dir", n.Dir),
				zap.String("previous", prev.Dir))
		}
		tree.ByIdentity[n.Identity] = n
	}

	tree.Root = tree.ByDir[root]
	if tree.Root == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoRootDescriptor, filepath.Join(root, s.descriptorName))
	}

	s.log.Debug(ctx, "scan complete", zap.String("root", root), zap.Int("modules", len(tree.Nodes)))
	return tree, nil
}

// readNode builds a node for the directory, or nil when it holds no
// descriptor.
func (s *Scanner) readNode(ctx context.Context, dir string) *module.Node {
	path := filepath.Join(dir, s.descriptorName)
	content, err := descriptor.Read(path)
	if err != nil {
		return nil
	}

	node := &module.Node{
		Dir:            filepath.Clean(dir),
		DescriptorPath: path,
		Children:       descriptor.Children(content),
		Role:           s.classifier.Classify(content, dir),
	}
	if identity, ok := descriptor.Identity(content); ok {
		node.Identity = identity
		node.Layer = module.LayerOf(identity)
	}
	if ref, ok := descriptor.Parent(content); ok {
		node.Parent = &module.ParentRef{
			Identity:     ref.Identity,
			RelativePath: ref.RelativePath,
		}
	}
	return node
}
