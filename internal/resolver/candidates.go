// Package resolver maps the many ways EPUB authoring tools spell a path to
// the archive entry they mean, and inlines the images it finds as data URIs.
package resolver

import (
	"net/url"
	"path"
	"strings"
)

// imageDirs are the conventional image folders tried under a bare filename.
var imageDirs = []string{"images/", "Images/", "OEBPS/images/", "OEBPS/Images/", "OEBPS/"}

// ImageCandidates returns the archive paths a manifest href may denote, in
// lookup priority order:
//
//  1. baseDir + href
//  2. the same without a leading "/"
//  3. "OEBPS/" + href
//  4. href as given
//  5. href with leading "../" segments resolved against baseDir
//  6. the filename alone
//  7. the filename under images/, Images/, OEBPS/images/, OEBPS/Images/, OEBPS/
//  8. the filename under baseDir + "images/" and baseDir + "Images/"
//
// When href is percent-encoded, the candidates for its decoded spelling
// follow those of the raw spelling. The result is deduplicated, keeping the
// first occurrence, and never contains empty strings.
func ImageCandidates(baseDir, href string) []string {
	var c candidateList
	for _, h := range spellings(href) {
		c.addImage(baseDir, h)
	}
	return c.list
}

// ReferenceCandidates returns the candidates for a src found in chapter
// markup. The path resolved against the chapter's own directory comes first,
// since chapter-relative references are the common case; the package-level
// candidates of ImageCandidates follow.
func ReferenceCandidates(chapterDir, baseDir, src string) []string {
	var c candidateList
	spelled := spellings(src)
	for _, s := range spelled {
		c.add(joinRelative(chapterDir, s))
	}
	for _, s := range spelled {
		c.addImage(baseDir, s)
	}
	return c.list
}

type candidateList struct {
	list []string
	seen map[string]bool
}

func (c *candidateList) add(p string) {
	if p == "" || p == "." || p == "/" {
		return
	}
	if c.seen == nil {
		c.seen = make(map[string]bool)
	}
	if c.seen[p] {
		return
	}
	c.seen[p] = true
	c.list = append(c.list, p)
}

func (c *candidateList) addImage(baseDir, href string) {
	nominal := baseDir + href
	c.add(nominal)
	c.add(strings.TrimPrefix(nominal, "/"))
	c.add("OEBPS/" + href)
	c.add(href)
	c.add(resolveParent(baseDir, href))

	name := path.Base(href)
	if name == "." || name == "/" || name == ".." {
		return
	}
	c.add(name)
	for _, dir := range imageDirs {
		c.add(dir + name)
	}
	if baseDir != "" {
		c.add(baseDir + "images/" + name)
		c.add(baseDir + "Images/" + name)
	}
}

// spellings returns the trimmed reference, without fragment or query, and
// its percent-decoded form when that differs.
func spellings(ref string) []string {
	ref = strings.TrimSpace(ref)
	ref, _, _ = strings.Cut(ref, "#")
	ref, _, _ = strings.Cut(ref, "?")
	if ref == "" {
		return nil
	}
	out := []string{ref}
	if decoded, err := url.PathUnescape(ref); err == nil && decoded != ref {
		out = append(out, decoded)
	}
	return out
}

// resolveParent strips one trailing directory of baseDir per leading "../"
// of href and appends the remainder. It returns "" when href has no leading
// "../".
func resolveParent(baseDir, href string) string {
	rest := href
	ups := 0
	for strings.HasPrefix(rest, "../") {
		rest = strings.TrimPrefix(rest, "../")
		ups++
	}
	if ups == 0 || rest == "" {
		return ""
	}

	var dirs []string
	for _, d := range strings.Split(baseDir, "/") {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	if ups > len(dirs) {
		ups = len(dirs)
	}
	dirs = dirs[:len(dirs)-ups]
	if len(dirs) == 0 {
		return rest
	}
	return strings.Join(dirs, "/") + "/" + rest
}

// joinRelative resolves ref against dir the way a browser would, clamped
// to the archive root.
func joinRelative(dir, ref string) string {
	if strings.HasPrefix(ref, "/") {
		return strings.TrimPrefix(path.Clean(ref), "/")
	}
	joined := path.Clean(path.Join(dir, ref))
	for strings.HasPrefix(joined, "../") {
		joined = strings.TrimPrefix(joined, "../")
	}
	if joined == ".." {
		return ""
	}
	return joined
}

// IsInlineable reports whether a reference names an archive resource at all,
// as opposed to an external URL, a data URI or an empty value.
func IsInlineable(ref string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return false
	}
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		return false
	}
	return true
}
