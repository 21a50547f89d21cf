package books

// Seed returns the sample books loaded by the seed command.
func Seed() []Book {
	return []Book{
		{
			Title:           "The Great Gatsby",
			Author:          "F. Scott Fitzgerald",
			Genre:           "Classic",
			PublicationYear: 1925,
			ISBN:            "9780743273565",
			Publisher:       "Scribner",
			PageCount:       180,
			Language:        "English",
			Price:           12.99,
			Rating:          4.5,
			InStock:         Bool(true),
			Tags:            []string{"american", "jazz age", "tragedy"},
		},
		{
			Title:           "To Kill a Mockingbird",
			Author:          "Harper Lee",
			Genre:           "Fiction",
			PublicationYear: 1960,
			ISBN:            "9780061120084",
			Publisher:       "J.B. Lippincott & Co.",
			PageCount:       281,
			Language:        "English",
			Price:           14.99,
			Rating:          4.8,
			InStock:         Bool(true),
			Tags:            []string{"southern", "courtroom", "racism"},
		},
		{
			Title:           "1984",
			Author:          "George Orwell",
			Genre:           "Dystopian",
			PublicationYear: 1949,
			ISBN:            "9780451524935",
			Publisher:       "Secker & Warburg",
			PageCount:       328,
			Language:        "English",
			Price:           10.99,
			Rating:          4.7,
			InStock:         Bool(false),
			Tags:            []string{"dystopian", "political", "surveillance"},
		},
		{
			Title:           "Pride and Prejudice",
			Author:          "Jane Austen",
			Genre:           "Romance",
			PublicationYear: 1813,
			ISBN:            "9780141439518",
			Publisher:       "T. Egerton",
			PageCount:       432,
			Language:        "English",
			Price:           9.99,
			Rating:          4.6,
			InStock:         Bool(true),
			Tags:            []string{"romance", "british", "class"},
		},
		{
			Title:           "The Hobbit",
			Author:          "J.R.R. Tolkien",
			Genre:           "Fantasy",
			PublicationYear: 1937,
			ISBN:            "9780547928227",
			Publisher:       "George Allen & Unwin",
			PageCount:       310,
			Language:        "English",
			Price:           15.99,
			Rating:          4.9,
			InStock:         Bool(true),
			Tags:            []string{"fantasy", "adventure", "middle-earth"},
		},
	}
}

// Alchemist is the book created, updated and deleted by the crud command.
// Language and InStock are left for the defaults.
func Alchemist() Book {
	return Book{
		Title:           "The Alchemist",
		Author:          "Paulo Coelho",
		Genre:           "Fiction",
		PublicationYear: 1988,
		ISBN:            "9780061122415",
		Publisher:       "HarperCollins",
		PageCount:       208,
		Price:           14.99,
		Rating:          4.5,
		Tags:            []string{"adventure", "philosophical", "quest"},
	}
}
