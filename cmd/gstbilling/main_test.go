package main

import (
	"testing"

	_ "github.com/odyssey-erp/gstbilling/testing"
)

func TestMainSkipsInTestMode(t *testing.T) {
	main()
}
