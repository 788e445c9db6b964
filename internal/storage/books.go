package storage

import (
	"context"
	"time"
)

// Book is a row of the books table
type Book struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"not null" json:"title"`
	Author    string    `gorm:"not null" json:"author"`
	OwnerID   int64     `gorm:"column:owner_id;not null" json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewBook carries the fields required to create a book
type NewBook struct {
	Title   string
	Author  string
	OwnerID int64
}

// BookRepo reads and writes books.
type BookRepo struct{ db *DB }

func NewBookRepo(db *DB) *BookRepo { return &BookRepo{db: db} }

// List returns every book ordered by id
func (r *BookRepo) List(ctx context.Context) ([]Book, error) {
	books := make([]Book, 0)
	if err := r.db.gorm.WithContext(ctx).Order("id asc").Find(&books).Error; err != nil {
		return nil, wrapErr("list books", err)
	}
	return books, nil
}

// Create inserts a book and returns the stored row
func (r *BookRepo) Create(ctx context.Context, nb NewBook) (Book, error) {
	book := Book{Title: nb.Title, Author: nb.Author, OwnerID: nb.OwnerID}
	if err := r.db.gorm.WithContext(ctx).Create(&book).Error; err != nil {
		return Book{}, wrapErr("create book", err)
	}
	return book, nil
}
