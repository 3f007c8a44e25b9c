package huifu

import "github.com/mstgnz/gohuifu/provider"

// Register Huifu request kinds with the default registry
func init() {
	provider.Register(Kinds()...)
}
