// Package vm implements the Phoenix runtime and its hot-reload engine.
//
// This package contains:
//   - Tagged value representation and heap object layout
//   - Class table and library registry with reload checkpointing
//   - Program image reading and loading
//   - Shape-change instance morphing and identity forwarding
//   - Call-site cache and compiled-code invalidation
package vm
