package main

import (
	coinsig "github.com/doismellburning/coinsig/src"
)

func main() {
	coinsig.DecodeMain()
}
