package mask

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/naga"
)

//go:embed shaders/mask_vs.wgsl
var vertexShaderSource string

//go:embed shaders/mask_fs.wgsl
var fragmentShaderSource string

// compileSPIRV compiles WGSL source to SPIR-V words.
func compileSPIRV(wgsl string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, err
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("spir-v length %d is not a multiple of 4", len(spirvBytes))
	}

	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// Compiled holds the SPIR-V of both mask stages.
type Compiled struct {
	Vertex   []uint32
	Fragment []uint32
}

// Compile compiles vertex and fragment WGSL sources.
func Compile(vertex, fragment string) (Compiled, error) {
	vs, err := compileSPIRV(vertex)
	if err != nil {
		return Compiled{}, fmt.Errorf("compile vertex shader: %w", err)
	}
	fs, err := compileSPIRV(fragment)
	if err != nil {
		return Compiled{}, fmt.Errorf("compile fragment shader: %w", err)
	}
	return Compiled{Vertex: vs, Fragment: fs}, nil
}
