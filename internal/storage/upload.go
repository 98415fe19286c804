package storage

import (
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Upload is one file received from a client, not yet stored.
type Upload struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

func (u Upload) Extension() string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(u.Name)), ".")
}

// Validator enforces the size limit and extension allow-list for uploads.
type Validator struct {
	maxSize    int64
	extensions map[string]struct{}
}

func NewValidator(maxSize int64, extensions []string) *Validator {
	v := &Validator{maxSize: maxSize, extensions: make(map[string]struct{}, len(extensions))}
	for _, e := range extensions {
		v.extensions[strings.TrimPrefix(strings.ToLower(e), ".")] = struct{}{}
	}
	return v
}

// Restrict returns a validator with the same size limit that only accepts
// the given extensions, provided they are also accepted by v.
func (v *Validator) Restrict(extensions ...string) *Validator {
	allowed := make([]string, 0, len(extensions))
	for _, e := range extensions {
		if _, ok := v.extensions[e]; ok {
			allowed = append(allowed, e)
		}
	}
	return NewValidator(v.maxSize, allowed)
}

func (v *Validator) MaxSize() int64 { return v.maxSize }

// Check validates a single file and returns its detected MIME type.
func (v *Validator) Check(u Upload) (string, error) {
	if u.Size > v.maxSize {
		return "", fmt.Errorf("%s exceeds the maximum size of %d KB", u.Name, v.maxSize/1024)
	}
	ext := u.Extension()
	if _, ok := v.extensions[ext]; !ok {
		return "", fmt.Errorf("%s must be a file of type: %s", u.Name, v.allowedList())
	}

	mime, err := DetectMIME(u)
	if err != nil {
		return "", err
	}
	if isImageExt(ext) && !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%s content does not match its extension", u.Name)
	}
	return mime, nil
}

// CheckAll validates every file and returns errors keyed by "<field>.<index>".
// The map is empty when all files are acceptable.
func (v *Validator) CheckAll(field string, files []Upload) (mimes []string, errs map[string]string) {
	errs = make(map[string]string)
	mimes = make([]string, len(files))
	for i, f := range files {
		m, err := v.Check(f)
		if err != nil {
			errs[fmt.Sprintf("%s.%d", field, i)] = err.Error()
			continue
		}
		mimes[i] = m
	}
	return mimes, errs
}

func (v *Validator) allowedList() string {
	out := make([]string, 0, len(v.extensions))
	for e := range v.extensions {
		out = append(out, e)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}

// DetectMIME sniffs the file header.
func DetectMIME(u Upload) (string, error) {
	if u.Open == nil {
		return "application/octet-stream", nil
	}
	rc, err := u.Open()
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", u.Name, err)
	}
	defer rc.Close()

	m, err := mimetype.DetectReader(rc)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", u.Name, err)
	}
	return m.String(), nil
}

func isImageExt(ext string) bool {
	return ext == "jpg" || ext == "jpeg" || ext == "png"
}
