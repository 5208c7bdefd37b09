// Package descriptor is the narrow edit surface over per-module build
// descriptors (pom.xml).
//
// Descriptors are treated as semi-structured UTF-8 text. Reads and edits are
// targeted search/replace of specific elements (identity, parent reference,
// declared children, dependency-management block) rather than a full
// structural parse. The interface is deliberately small so a real parser
// could replace the regex mechanics without touching orchestration code.
//
// All edit functions are pure: they take content and return new content,
// leaving writes to the mutation workflow.
package descriptor

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// DefaultFilename is the standard build descriptor filename.
const DefaultFilename = "pom.xml"

// Errors returned by descriptor operations.
var (
	ErrNoIdentity        = errors.New("descriptor declares no identity")
	ErrNoParent          = errors.New("descriptor declares no parent reference")
	ErrIdentityMismatch  = errors.New("descriptor identity does not match expected value")
	ErrNoModulesBlock    = errors.New("descriptor declares no modules block")
	ErrChildNotDeclared  = errors.New("child is not declared in modules block")
	ErrNoDepManagement   = errors.New("descriptor declares no dependency management")
	ErrDepManagementDup  = errors.New("descriptor already declares dependency management")
	ErrMalformed         = errors.New("descriptor is malformed")
)

// ParentRef is a declared parent reference.
type ParentRef struct {
	Identity     string
	RelativePath string
}

var (
	parentBlockRe  = regexp.MustCompile(`(?s)<parent>.*?</parent>`)
	artifactIDRe   = regexp.MustCompile(`<artifactId>\s*([^<]*?)\s*</artifactId>`)
	relativePathRe = regexp.MustCompile(`<relativePath>\s*([^<]*?)\s*</relativePath>`)
	modulesBlockRe = regexp.MustCompile(`(?s)<modules>.*?</modules>`)
	moduleEntryRe  = regexp.MustCompile(`[ \t]*<module>\s*([^<]*?)\s*</module>[ \t]*\n?`)
	depMgmtRe      = regexp.MustCompile(`(?s)[ \t]*<dependencyManagement>.*?</dependencyManagement>\s*\n?`)
	projectCloseRe = regexp.MustCompile(`</project>`)
)

// Read loads a descriptor file as UTF-8 text.
func Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading descriptor: %w", err)
	}
	return string(data), nil
}

// parentSpan returns the byte span of the <parent> block, or (-1, -1).
func parentSpan(content string) (int, int) {
	loc := parentBlockRe.FindStringIndex(content)
	if loc == nil {
		return -1, -1
	}
	return loc[0], loc[1]
}

// identityIndex returns the submatch index slice of the first <artifactId>
// outside the <parent> block, or nil.
func identityIndex(content string) []int {
	ps, pe := parentSpan(content)
	for _, m := range artifactIDRe.FindAllStringSubmatchIndex(content, -1) {
		if ps >= 0 && m[0] >= ps && m[1] <= pe {
			continue
		}
		return m
	}
	return nil
}

// Identity returns the module's own artifact identity. The first
// <artifactId> outside any <parent> block wins.
func Identity(content string) (string, bool) {
	m := identityIndex(content)
	if m == nil {
		return "", false
	}
	id := content[m[2]:m[3]]
	if id == "" {
		return "", false
	}
	return id, true
}

// Parent returns the declared parent reference.
func Parent(content string) (ParentRef, bool) {
	ps, pe := parentSpan(content)
	if ps < 0 {
		return ParentRef{}, false
	}
	block := content[ps:pe]
	var ref ParentRef
	if m := artifactIDRe.FindStringSubmatch(block); m != nil {
		ref.Identity = m[1]
	}
	if m := relativePathRe.FindStringSubmatch(block); m != nil {
		ref.RelativePath = m[1]
	}
	if ref.Identity == "" {
		return ParentRef{}, false
	}
	return ref, true
}

// Children returns the declared child locators in declaration order.
func Children(content string) []string {
	block := modulesBlockRe.FindString(content)
	if block == "" {
		return nil
	}
	var out []string
	for _, m := range moduleEntryRe.FindAllStringSubmatch(block, -1) {
		if m[1] != "" {
			out = append(out, m[1])
		}
	}
	return out
}

// HasDependencyManagement reports whether the descriptor declares a
// dependency-management block.
func HasDependencyManagement(content string) bool {
	return depMgmtRe.MatchString(content)
}

// ReplaceIdentity rewrites the module's own identity from old to new.
// Already-renamed content is returned unchanged, which keeps rename
// propagation idempotent across retries.
func ReplaceIdentity(content, old, new string) (string, error) {
	m := identityIndex(content)
	if m == nil {
		return "", ErrNoIdentity
	}
	current := content[m[2]:m[3]]
	switch current {
	case new:
		return content, nil
	case old:
		return content[:m[2]] + new + content[m[3]:], nil
	default:
		return "", fmt.Errorf("%w: found %q, expected %q", ErrIdentityMismatch, current, old)
	}
}

// ReplaceParentIdentity rewrites the declared parent identity from old to
// new. Content already referencing new is returned unchanged.
func ReplaceParentIdentity(content, old, new string) (string, error) {
	ps, pe := parentSpan(content)
	if ps < 0 {
		return "", ErrNoParent
	}
	block := content[ps:pe]
	m := artifactIDRe.FindStringSubmatchIndex(block)
	if m == nil {
		return "", ErrNoParent
	}
	current := block[m[2]:m[3]]
	switch current {
	case new:
		return content, nil
	case old:
		return content[:ps+m[2]] + new + content[ps+m[3]:], nil
	default:
		return "", fmt.Errorf("%w: found %q, expected %q", ErrIdentityMismatch, current, old)
	}
}

// SetParentRelativePath rewrites the parent's declared relative locator.
// A missing <relativePath> element is added after the parent identity.
func SetParentRelativePath(content, locator string) (string, error) {
	ps, pe := parentSpan(content)
	if ps < 0 {
		return "", ErrNoParent
	}
	block := content[ps:pe]
	if m := relativePathRe.FindStringSubmatchIndex(block); m != nil {
		return content[:ps+m[2]] + locator + content[ps+m[3]:], nil
	}
	m := artifactIDRe.FindStringIndex(block)
	if m == nil {
		return "", ErrNoParent
	}
	insert := "\n    <relativePath>" + locator + "</relativePath>"
	return content[:ps+m[1]] + insert + content[ps+m[1]:], nil
}

// AddChild declares a child locator in the modules block, creating the
// block before </project> when absent. An already-declared child leaves
// the content unchanged.
func AddChild(content, child string) (string, error) {
	for _, c := range Children(content) {
		if c == child {
			return content, nil
		}
	}
	entry := "    <module>" + child + "</module>\n"
	if loc := modulesBlockRe.FindStringIndex(content); loc != nil {
		closeIdx := strings.LastIndex(content[:loc[1]], "</modules>")
		if closeIdx < 0 {
			return "", ErrMalformed
		}
		// Insert at the start of the closing tag's line so indentation of
		// both the new entry and </modules> stays intact.
		lineStart := closeIdx
		for lineStart > 0 && (content[lineStart-1] == ' ' || content[lineStart-1] == '\t') {
			lineStart--
		}
		return content[:lineStart] + entry + content[lineStart:], nil
	}
	loc := projectCloseRe.FindStringIndex(content)
	if loc == nil {
		return "", ErrMalformed
	}
	block := "  <modules>\n" + entry + "  </modules>\n"
	return content[:loc[0]] + block + content[loc[0]:], nil
}

// RemoveChild drops a declared child locator from the modules block.
func RemoveChild(content, child string) (string, error) {
	loc := modulesBlockRe.FindStringIndex(content)
	if loc == nil {
		return "", ErrNoModulesBlock
	}
	block := content[loc[0]:loc[1]]
	found := false
	newBlock := moduleEntryRe.ReplaceAllStringFunc(block, func(entry string) string {
		m := moduleEntryRe.FindStringSubmatch(entry)
		if m != nil && m[1] == child {
			found = true
			return ""
		}
		return entry
	})
	if !found {
		return "", fmt.Errorf("%w: %s", ErrChildNotDeclared, child)
	}
	return content[:loc[0]] + newBlock + content[loc[1]:], nil
}

// DependencyManagementSkeleton is the managed-dependencies block inserted
// on parent aggregators that are missing one.
const DependencyManagementSkeleton = `  <dependencyManagement>
    <dependencies>
    </dependencies>
  </dependencyManagement>
`

// InsertDependencyManagement adds a skeleton dependency-management block
// before </project>. Content already carrying a block is unchanged.
func InsertDependencyManagement(content string) (string, error) {
	if HasDependencyManagement(content) {
		return content, nil
	}
	loc := projectCloseRe.FindStringIndex(content)
	if loc == nil {
		return "", ErrMalformed
	}
	return content[:loc[0]] + DependencyManagementSkeleton + content[loc[0]:], nil
}

// RemoveDependencyManagement drops the dependency-management block. Content
// without one is unchanged.
func RemoveDependencyManagement(content string) (string, error) {
	if !HasDependencyManagement(content) {
		return content, nil
	}
	return depMgmtRe.ReplaceAllString(content, ""), nil
}
