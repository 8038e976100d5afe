package auth

import (
	"fmt"
	"io"
)

// ShowTokenGuide explains where to obtain an API token
func ShowTokenGuide(w io.Writer) {
	fmt.Fprintln(w, "Thingiverse API access needs an app token:")
	fmt.Fprintln(w, "  1. Sign in at https://www.thingiverse.com/developers")
	fmt.Fprintln(w, "  2. Create an app of type \"Desktop\"")
	fmt.Fprintln(w, "  3. Copy its App Token")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "The token can also be passed with --token or %s.\n", TokenEnv)
}
