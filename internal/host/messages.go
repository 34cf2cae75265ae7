package host

import (
	"context"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// User-facing alert texts. The English string is the catalog key.
const (
	MsgNoImages         = "No images found in selection!"
	MsgShareUnsupported = "Your device does not support saving this format via the Share menu."
	MsgSaveFailed       = "Save error: %s"
	MsgDescribeFailed   = "AI Error: %s"
	MsgUnknownError     = "Unknown error"
)

// Languages lists the locales with a translated catalog, default first.
var Languages = []language.Tag{language.English, language.Russian}

func init() {
	ru := language.Russian
	_ = message.SetString(ru, MsgNoImages, "В выбранных файлах нет изображений!")
	_ = message.SetString(ru, MsgShareUnsupported, "Ваше устройство не поддерживает сохранение этого формата через меню 'Поделиться'.")
	_ = message.SetString(ru, MsgSaveFailed, "Ошибка сохранения: %s")
	_ = message.SetString(ru, MsgDescribeFailed, "Ошибка AI: %s")
	_ = message.SetString(ru, MsgUnknownError, "Неизвестная ошибка")
}

type localeKey struct{}

// WithLocale stores a BCP 47 locale for Localize.
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeKey{}, locale)
}

// LocaleFrom returns the locale stored in ctx, or "en".
func LocaleFrom(ctx context.Context) string {
	if v, ok := ctx.Value(localeKey{}).(string); ok && v != "" {
		return v
	}
	return "en"
}

// Localize formats key in the locale carried by ctx.
func Localize(ctx context.Context, key string, args ...any) string {
	tag, err := language.Parse(LocaleFrom(ctx))
	if err != nil {
		tag = language.English
	}
	return message.NewPrinter(tag).Sprintf(key, args...)
}
