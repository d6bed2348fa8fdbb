package tests

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Well known anvil dev accounts. Never fund these on a public network.
const (
	AnvilAccountPrivateKey0 = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	AnvilAccountAddress0    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	AnvilAccountPrivateKey1 = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	AnvilAccountAddress1    = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

func GetProjectRootPath() string {
	wd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	startingPath := ""
	iterations := 0
	for {
		if iterations > 10 {
			panic("Could not find project root path")
		}
		iterations++
		p, err := filepath.Abs(fmt.Sprintf("%s/%s", wd, startingPath))
		if err != nil {
			panic(err)
		}

		match := regexp.MustCompile(`\/(signcheck-go|module)([A-Za-z0-9_-]+)?\/?$`)
		if match.MatchString(p) {
			return p
		}
		startingPath = startingPath + "/.."
	}
}
