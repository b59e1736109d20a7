// Package assets maps caller supplied image references onto readable files.
//
// A reference is either an inline data URI, which is decoded and staged, or a
// path-like string (absolute, relative, or a full URL) that is looked up under
// an ordered list of storage roots. The first root holding the file wins.
package assets

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"tryon/internal/domain"
	"tryon/internal/storage"
)

// Resolver resolves logical references against fixed roots. It is safe for
// concurrent use; only staging performs writes and every staged file gets a
// unique name.
type Resolver struct {
	roots   []string
	staging *storage.FileStore
}

// NewResolver builds a resolver probing roots in the given order. Empty and
// duplicate roots are dropped.
func NewResolver(roots []string, staging *storage.FileStore) (*Resolver, error) {
	if staging == nil {
		return nil, errors.New("assets: staging store is required")
	}
	seen := make(map[string]struct{}, len(roots))
	cleaned := make([]string, 0, len(roots))
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("assets: resolve root %q: %w", root, err)
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		cleaned = append(cleaned, abs)
	}
	return &Resolver{roots: cleaned, staging: staging}, nil
}

// Roots returns the probe order.
func (r *Resolver) Roots() []string {
	return append([]string(nil), r.roots...)
}

// Resolve returns the concrete path for ref.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	return r.ResolveAs(ctx, ref, "upload")
}

// ResolveAs behaves like Resolve but names staged inline payloads with prefix.
func (r *Resolver) ResolveAs(ctx context.Context, ref, prefix string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", domain.ErrInvalidAsset)
	}
	if IsInline(ref) {
		return r.stage(ctx, ref, prefix)
	}

	if filepath.IsAbs(ref) && r.insideRoots(ref) && isRegularFile(ref) {
		return filepath.Clean(ref), nil
	}

	rel, err := Normalize(ref)
	if err != nil {
		return "", err
	}
	if p, ok := r.lookup(rel); ok {
		return p, nil
	}
	return "", fmt.Errorf("%w: %s", domain.ErrAssetNotFound, ref)
}

func (r *Resolver) lookup(rel string) (string, bool) {
	for _, root := range r.roots {
		candidate := filepath.Join(root, filepath.FromSlash(rel))
		if isRegularFile(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// PublicRel returns the reference that resolves back to p. It fails when p
// lies outside every root or an earlier root shadows it.
func (r *Resolver) PublicRel(p string) (string, bool) {
	if p == "" || !filepath.IsAbs(p) {
		return "", false
	}
	p = filepath.Clean(p)
	for _, root := range r.roots {
		rel, err := filepath.Rel(root, p)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		rel = filepath.ToSlash(rel)
		clean, err := Normalize(rel)
		if err != nil || clean != rel {
			return "", false
		}
		got, ok := r.lookup(clean)
		return rel, ok && got == p
	}
	return "", false
}

func (r *Resolver) stage(ctx context.Context, ref, prefix string) (string, error) {
	mime, data, err := DecodeDataURI(ref)
	if err != nil {
		return "", err
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "upload"
	}
	key := fmt.Sprintf("%s_%s%s", prefix, uuid.NewString(), ExtensionForMIME(mime))
	p, err := r.staging.Write(ctx, key, data)
	if err != nil {
		return "", fmt.Errorf("assets: stage inline payload: %w", err)
	}
	return p, nil
}

func (r *Resolver) insideRoots(p string) bool {
	p = filepath.Clean(p)
	for _, root := range append(r.Roots(), r.staging.BasePath()) {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// IsInline reports whether ref embeds its payload.
func IsInline(ref string) bool {
	return len(ref) >= 5 && strings.EqualFold(ref[:5], "data:")
}

// DecodeDataURI parses data:[<mime>][;base64],<payload>.
func DecodeDataURI(ref string) (string, []byte, error) {
	if !IsInline(ref) {
		return "", nil, fmt.Errorf("%w: not a data uri", domain.ErrInvalidAsset)
	}
	header, payload, ok := strings.Cut(ref[5:], ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: data uri has no payload separator", domain.ErrInvalidAsset)
	}
	mime := "application/octet-stream"
	isBase64 := false
	for i, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		switch {
		case i == 0 && part != "":
			mime = strings.ToLower(part)
		case strings.EqualFold(part, "base64"):
			isBase64 = true
		}
	}

	var data []byte
	if isBase64 {
		cleaned := strings.Map(func(r rune) rune {
			if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
				return -1
			}
			return r
		}, payload)
		decoded, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(cleaned, "="))
			if err != nil {
				return "", nil, fmt.Errorf("%w: base64 payload: %v", domain.ErrInvalidAsset, err)
			}
		}
		data = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return "", nil, fmt.Errorf("%w: percent-encoded payload: %v", domain.ErrInvalidAsset, err)
		}
		data = []byte(unescaped)
	}
	if len(data) == 0 {
		return "", nil, fmt.Errorf("%w: empty payload", domain.ErrInvalidAsset)
	}
	return mime, data, nil
}

// Normalize turns a path-like reference into a clean relative path.
func Normalize(ref string) (string, error) {
	s := strings.TrimSpace(ref)
	if lower := strings.ToLower(s); strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrInvalidAsset, err)
		}
		s = u.Path
	} else {
		if i := strings.IndexAny(s, "?#"); i >= 0 {
			s = s[:i]
		}
		if unescaped, err := url.PathUnescape(s); err == nil {
			s = unescaped
		}
	}
	s = strings.ReplaceAll(s, "\\", "/")
	s = norm.NFC.String(s)
	s = strings.TrimLeft(s, "/")
	s = strings.TrimPrefix(s, "static/")
	if s == "" {
		return "", fmt.Errorf("%w: %q has no path", domain.ErrInvalidAsset, ref)
	}
	cleaned := path.Clean(s)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q escapes the asset roots", domain.ErrInvalidAsset, ref)
	}
	return cleaned, nil
}

// ExtensionForMIME maps an image MIME type onto a file extension.
func ExtensionForMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "video/mp4":
		return ".mp4"
	default:
		return ".bin"
	}
}

// MIMEForPath guesses the image MIME type from a file extension.
func MIMEForPath(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

func isRegularFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
