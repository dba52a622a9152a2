// Command hashpw prints the PBKDF2-HMAC-SHA256 hash the simple mapper
// compares passwords against, so operators can paste the result into
// SIMPLE_MAPPER_PASSWORD_HASH.
package main

import (
	"fmt"
	"os"

	"github.com/pcoip-broker/broker/internal/broker/mapper"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <password>\n", os.Args[0])
		os.Exit(2)
	}
	fmt.Println(mapper.HashPassword(os.Args[1]))
}
