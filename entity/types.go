package entity

import "time"

// ReadingProgress tracks how far a user has read a book.
type ReadingProgress struct {
	ID                 string
	BookID             string
	ProgressPercentage float64
	CurrentPage        int
	Position           string
	ReadingTimeMinutes int
	Updated            time.Time
}

func (p ReadingProgress) EntityID() string   { return p.ID }
func (p ReadingProgress) EntityType() Type   { return TypeReadingProgress }
func (p ReadingProgress) UpdatedAt() time.Time { return p.Updated }

func (p ReadingProgress) ToMap() map[string]any {
	return map[string]any{
		"id":                 p.ID,
		"bookId":             p.BookID,
		"progressPercentage": p.ProgressPercentage,
		"currentPage":        p.CurrentPage,
		"position":           p.Position,
		"readingTimeMinutes": p.ReadingTimeMinutes,
		"updatedAt":          Timestamp(p.Updated),
	}
}

// ReadingProgressFromMap rebuilds a ReadingProgress from its flat form.
func ReadingProgressFromMap(m map[string]any) ReadingProgress {
	return ReadingProgress{
		ID:                 stringField(m, "id"),
		BookID:             stringField(m, "bookId"),
		ProgressPercentage: floatField(m, "progressPercentage"),
		CurrentPage:        intField(m, "currentPage"),
		Position:           stringField(m, "position"),
		ReadingTimeMinutes: intField(m, "readingTimeMinutes"),
		Updated:            timeField(m, "updatedAt"),
	}
}

// Bookmark marks a page in a book.
type Bookmark struct {
	ID      string
	BookID  string
	Page    int
	Title   string
	Updated time.Time
}

func (b Bookmark) EntityID() string     { return b.ID }
func (b Bookmark) EntityType() Type     { return TypeBookmark }
func (b Bookmark) UpdatedAt() time.Time { return b.Updated }

func (b Bookmark) ToMap() map[string]any {
	return map[string]any{
		"id":        b.ID,
		"bookId":    b.BookID,
		"page":      b.Page,
		"title":     b.Title,
		"updatedAt": Timestamp(b.Updated),
	}
}

func BookmarkFromMap(m map[string]any) Bookmark {
	return Bookmark{
		ID:      stringField(m, "id"),
		BookID:  stringField(m, "bookId"),
		Page:    intField(m, "page"),
		Title:   stringField(m, "title"),
		Updated: timeField(m, "updatedAt"),
	}
}

// Note is a user annotation attached to a book position.
type Note struct {
	ID      string
	BookID  string
	Page    int
	Content string
	Updated time.Time
}

func (n Note) EntityID() string     { return n.ID }
func (n Note) EntityType() Type     { return TypeNote }
func (n Note) UpdatedAt() time.Time { return n.Updated }

func (n Note) ToMap() map[string]any {
	return map[string]any{
		"id":        n.ID,
		"bookId":    n.BookID,
		"page":      n.Page,
		"content":   n.Content,
		"updatedAt": Timestamp(n.Updated),
	}
}

func NoteFromMap(m map[string]any) Note {
	return Note{
		ID:      stringField(m, "id"),
		BookID:  stringField(m, "bookId"),
		Page:    intField(m, "page"),
		Content: stringField(m, "content"),
		Updated: timeField(m, "updatedAt"),
	}
}

// Collection is a user-owned grouping of books.
type Collection struct {
	ID          string
	Name        string
	Description string
	BookIDs     []string
	Updated     time.Time
}

func (c Collection) EntityID() string     { return c.ID }
func (c Collection) EntityType() Type     { return TypeCollection }
func (c Collection) UpdatedAt() time.Time { return c.Updated }

func (c Collection) ToMap() map[string]any {
	bookIDs := make([]any, len(c.BookIDs))
	for i, id := range c.BookIDs {
		bookIDs[i] = id
	}
	return map[string]any{
		"id":          c.ID,
		"name":        c.Name,
		"description": c.Description,
		"bookIds":     bookIDs,
		"updatedAt":   Timestamp(c.Updated),
	}
}

func CollectionFromMap(m map[string]any) Collection {
	c := Collection{
		ID:          stringField(m, "id"),
		Name:        stringField(m, "name"),
		Description: stringField(m, "description"),
		Updated:     timeField(m, "updatedAt"),
	}
	switch ids := m["bookIds"].(type) {
	case []any:
		for _, id := range ids {
			if s, ok := id.(string); ok {
				c.BookIDs = append(c.BookIDs, s)
			}
		}
	case []string:
		c.BookIDs = append(c.BookIDs, ids...)
	}
	return c
}

// Book is the catalog record for a title in the library.
type Book struct {
	ID       string
	Title    string
	AuthorID string
	ISBN     string
	CoverURL string
	Updated  time.Time
}

func (b Book) EntityID() string     { return b.ID }
func (b Book) EntityType() Type     { return TypeBook }
func (b Book) UpdatedAt() time.Time { return b.Updated }

func (b Book) ToMap() map[string]any {
	return map[string]any{
		"id":        b.ID,
		"title":     b.Title,
		"authorId":  b.AuthorID,
		"isbn":      b.ISBN,
		"coverUrl":  b.CoverURL,
		"updatedAt": Timestamp(b.Updated),
	}
}

func BookFromMap(m map[string]any) Book {
	return Book{
		ID:       stringField(m, "id"),
		Title:    stringField(m, "title"),
		AuthorID: stringField(m, "authorId"),
		ISBN:     stringField(m, "isbn"),
		CoverURL: stringField(m, "coverUrl"),
		Updated:  timeField(m, "updatedAt"),
	}
}

// Author is the catalog record for a book author.
type Author struct {
	ID      string
	Name    string
	Updated time.Time
}

func (a Author) EntityID() string     { return a.ID }
func (a Author) EntityType() Type     { return TypeAuthor }
func (a Author) UpdatedAt() time.Time { return a.Updated }

func (a Author) ToMap() map[string]any {
	return map[string]any{
		"id":        a.ID,
		"name":      a.Name,
		"updatedAt": Timestamp(a.Updated),
	}
}

func AuthorFromMap(m map[string]any) Author {
	return Author{
		ID:      stringField(m, "id"),
		Name:    stringField(m, "name"),
		Updated: timeField(m, "updatedAt"),
	}
}

// Category is a catalog classification for books.
type Category struct {
	ID      string
	Name    string
	Updated time.Time
}

func (c Category) EntityID() string     { return c.ID }
func (c Category) EntityType() Type     { return TypeCategory }
func (c Category) UpdatedAt() time.Time { return c.Updated }

func (c Category) ToMap() map[string]any {
	return map[string]any{
		"id":        c.ID,
		"name":      c.Name,
		"updatedAt": Timestamp(c.Updated),
	}
}

func CategoryFromMap(m map[string]any) Category {
	return Category{
		ID:      stringField(m, "id"),
		Name:    stringField(m, "name"),
		Updated: timeField(m, "updatedAt"),
	}
}
