package classifier

import (
	"cmp"
	"slices"
	"strings"

	"routerbot/pkg/config"
)

const (
	CategoryGreeting = "greeting"
	CategoryQuestion = "question"
	CategoryRequest  = "request"
	CategoryFeedback = "feedback"
	CategoryCasual   = "casual"
)

// Category is one intent label the classifier can assign.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

// DefaultCategories returns the built-in category set in prompt order.
func DefaultCategories() []Category {
	return []Category{
		{ID: CategoryGreeting, Name: "Приветствие", Description: "Приветствия, знакомство, начало разговора", Priority: 1},
		{ID: CategoryQuestion, Name: "Вопрос", Description: "Вопросы, требующие ответа или объяснения", Priority: 2},
		{ID: CategoryRequest, Name: "Запрос", Description: "Просьбы о помощи, выполнении действий", Priority: 3},
		{ID: CategoryFeedback, Name: "Обратная связь", Description: "Благодарности, отзывы, оценки", Priority: 4},
		{ID: CategoryCasual, Name: "Обычный разговор", Description: "Общение на свободные темы", Priority: 5},
	}
}

// AddCategory registers a new category and keeps the set ordered by priority.
// Empty or duplicate ids and names are rejected.
func (c *Classifier) AddCategory(category Category) error {
	category.ID = strings.TrimSpace(category.ID)
	category.Name = strings.TrimSpace(category.Name)
	if category.ID == "" {
		return config.Invalid("category.id", "id is required")
	}
	if category.Name == "" {
		return config.Invalid("category.name", "name is required for %q", category.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.categories {
		if existing.ID == category.ID {
			return config.Invalid("category.id", "duplicate id %q", category.ID)
		}
		if strings.EqualFold(existing.Name, category.Name) {
			return config.Invalid("category.name", "duplicate name %q", category.Name)
		}
	}

	c.categories = append(c.categories, category)
	slices.SortStableFunc(c.categories, func(a, b Category) int {
		return cmp.Compare(a.Priority, b.Priority)
	})
	return nil
}

// Categories returns a copy of the registered categories.
func (c *Classifier) Categories() []Category {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.categories)
}

func (c *Classifier) lookup(id string) (Category, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, category := range c.categories {
		if category.ID == id {
			return category, true
		}
	}
	return Category{}, false
}
