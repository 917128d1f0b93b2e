package singleton

import (
	"github.com/fedgatehq/fedgate/pkg/i18n"
)

var Localizer *i18n.Localizer

func initI18n() error {
	lang := "zh_CN"
	if Conf != nil && Conf.Language != "" {
		lang = Conf.Language
	}
	Localizer = i18n.NewLocalizer(lang, "fedgate", "translations", i18n.Translations)
	return nil
}

// OnUpdateLang 语言变更后按需加载新目录
func OnUpdateLang(lang string) {
	if !Localizer.Exists(lang) {
		Localizer.AppendIntl(lang)
	}
	Localizer.SetLanguage(lang)
}
