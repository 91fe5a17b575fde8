package dispatcher

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"routerbot/pkg/bus"
	"routerbot/pkg/router"
)

const unknownValue = "неизвестно"

var errNoMedia = errors.New("media descriptor is missing")

func describeMedia(m *bus.Media) (string, error) {
	if m == nil {
		return "", errNoMedia
	}

	switch m.Type {
	case bus.MediaPhoto:
		suffix := ""
		if m.Count > 1 {
			suffix = fmt.Sprintf(" (%d изображений)", m.Count)
		}
		return "📸 Получил ваше фото" + suffix + "! Спасибо за изображение.", nil

	case bus.MediaDocument:
		return fmt.Sprintf("📄 Получил ваш документ \"<b>%s</b>\"!\n\n📊 Размер: %s\n🔧 Тип: %s\n\n✅ Файл успешно загружен.",
			router.Escape(orDefault(m.FileName, "документ")),
			formatSize(m.Size),
			router.Escape(orDefault(m.MimeType, "неизвестный тип")),
		), nil

	case bus.MediaVoice:
		return fmt.Sprintf("🎤 Получил ваше голосовое сообщение (%s)!\n\n🎵 Очень приятно вас слышать.", formatDuration(m.Duration)), nil

	case bus.MediaVideo:
		return fmt.Sprintf("🎥 Получил ваше видео (%s)!\n\n🎬 Отличный ролик!", formatDuration(m.Duration)), nil

	case bus.MediaAudio:
		return fmt.Sprintf("🎵 Получил аудио \"<b>%s</b>\" от %s!\n\n⏱️ Длительность: %s\n\n🎶 Отличная музыка!",
			router.Escape(orDefault(m.Title, "аудио")),
			router.Escape(orDefault(m.Performer, "неизвестный исполнитель")),
			formatDuration(m.Duration),
		), nil

	case bus.MediaSticker:
		return fmt.Sprintf("%s Получил ваш стикер из набора \"%s\"!\n\n🎭 Очень мило!",
			router.Escape(orDefault(m.Emoji, "😄")),
			router.Escape(orDefault(m.SetName, "стандартный набор")),
		), nil

	default:
		return "", fmt.Errorf("unsupported media type %q", m.Type)
	}
}

func formatSize(bytes int64) string {
	if bytes <= 0 {
		return unknownValue
	}
	return humanize.IBytes(uint64(bytes))
}

func formatDuration(d time.Duration) string {
	total := int64(d / time.Second)
	if total <= 0 {
		return unknownValue
	}
	if minutes := total / 60; minutes > 0 {
		return fmt.Sprintf("%d мин %d сек", minutes, total%60)
	}
	return fmt.Sprintf("%d сек", total)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
