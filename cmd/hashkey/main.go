package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

// hashkey produces the bcrypt hash expected in BOOKDEN_ADMIN_KEY_HASH.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: hashkey <admin-key>")
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(os.Args[1]), bcrypt.DefaultCost)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(hash))
}
