package router

import (
	"context"
	"strings"

	"routerbot/pkg/classifier"
)

const (
	CategoryStatus = "status"

	defaultReplyFormat = "📝 Вы написали: \"%s\"\n\n💡 Это стандартный ответ модуля роутинга."

	handlerErrorReply = "❌ Произошла ошибка при обработке вашего сообщения.\n\n" +
		"💡 Попробуйте переформулировать или обратитесь к администратору."
)

var (
	greetingTemplates = []string{
		"Привет! 👋 Как дела?",
		"Здравствуйте! 😊 Рад вас видеть!",
		"Приветствую! 🎉 Чем могу помочь?",
		"Добрый день! ☀️ Как ваши дела?",
	}

	statusTemplates = []string{
		"У меня все отлично! 😊 Спасибо, что спросили!",
		"Все хорошо! 🚀 Готов помогать и общаться!",
		"Прекрасно! ✨ Как у вас дела?",
		"Отлично! 🌟 Работаю без сбоев!",
	}

	thanksTemplates = []string{
		"Пожалуйста! 😊 Рад быть полезным!",
		"Не за что! 🌟 Всегда к вашим услугам!",
		"Обращайтесь! 🎯 Буду рад помочь снова!",
		"Рад стараться! ✨ Спасибо за обращение!",
	}
)

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// Escape makes text safe to embed in an HTML-mode message.
func Escape(text string) string {
	return htmlEscaper.Replace(text)
}

func (r *Router) builtinRoutes() []Binding {
	return []Binding{
		{
			ID:          "greeting",
			Category:    classifier.CategoryGreeting,
			Description: "Приветствие",
			Pattern:     `(?i)(привет|здравствуй|hi|hello)`,
			Regexp:      true,
			Priority:    1,
			Handler:     r.templateHandler(greetingTemplates),
		},
		{
			ID:          "status",
			Category:    CategoryStatus,
			Description: "Вопрос о состоянии",
			Pattern:     `(?i)(как дела|как ты|как жизнь|how are you)`,
			Regexp:      true,
			Priority:    2,
			Handler:     r.templateHandler(statusTemplates),
		},
		{
			ID:          "thanks",
			Category:    classifier.CategoryFeedback,
			Description: "Благодарность",
			Pattern:     `(?i)(спасибо|благодарю|thanks|thank you)`,
			Regexp:      true,
			Priority:    1,
			Handler:     r.templateHandler(thanksTemplates),
		},
	}
}

func (r *Router) templateHandler(templates []string) Handler {
	return func(context.Context, string) (string, error) {
		return templates[r.pick(len(templates))], nil
	}
}
