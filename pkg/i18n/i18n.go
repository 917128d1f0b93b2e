package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sync"

	"github.com/leonelquinteros/gotext"
)

//go:embed translations
var Translations embed.FS

type Localizer struct {
	intlMap map[string]gotext.Translator
	lang    string
	domain  string
	path    string
	fs      fs.FS

	mu sync.RWMutex
}

func NewLocalizer(lang, domain, path string, fs fs.FS) *Localizer {
	loc := &Localizer{
		intlMap: make(map[string]gotext.Translator),
		lang:    lang,
		domain:  domain,
		path:    path,
		fs:      fs,
	}

	if tr := loc.load(lang); tr != nil {
		loc.intlMap[lang] = tr
	}

	return loc
}

func (l *Localizer) SetLanguage(lang string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lang = lang
}

func (l *Localizer) Exists(lang string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.intlMap[lang]
	return ok
}

func (l *Localizer) AppendIntl(lang string) {
	tr := l.load(lang)
	if tr == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.intlMap[lang] = tr
}

func (l *Localizer) T(orig string) string {
	l.mu.RLock()
	intl, ok := l.intlMap[l.lang]
	l.mu.RUnlock()
	if !ok {
		return orig
	}

	return intl.Get(orig)
}

// ErrorT produces an error with a translated error string, with
// fmt-style substitution applied after translation.
func (l *Localizer) ErrorT(defaultValue string, args ...any) error {
	return fmt.Errorf(l.T(defaultValue), args...)
}

func (l *Localizer) Tf(defaultValue string, args ...any) string {
	return fmt.Sprintf(l.T(defaultValue), args...)
}

// load 查找并解析语言目录下的 .po 文件，找不到时返回 nil
func (l *Localizer) load(lang string) gotext.Translator {
	file := l.findPo(lang)
	if file == "" {
		return nil
	}

	po := gotext.NewPoFS(l.fs)
	po.ParseFile(file)
	return po
}

func (l *Localizer) findPo(lang string) string {
	candidates := []string{
		path.Join(l.path, lang, l.domain+".po"),
	}
	if len(lang) > 2 {
		candidates = append(candidates, path.Join(l.path, lang[:2], l.domain+".po"))
	}

	for _, filename := range candidates {
		if _, err := fs.Stat(l.fs, filename); err == nil {
			return filename
		}
	}
	return ""
}
