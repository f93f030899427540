package repository

// User is a row of user_schema.users.
type User struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Email    string `db:"email" json:"email"`
	Password string `db:"password" json:"-"`
}

// Address is a row of address_schema.addresses.
type Address struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}
