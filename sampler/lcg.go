// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package sampler

import (
	"math/rand"
)

// lcgState is a full-period linear congruential generator: the quadruple
// (a, c, m, element) satisfies the Hull-Dobell conditions specialized to
// power-of-two m (m a power of two, a≡1 mod 4, c odd), so iterating "next"
// m times visits every residue in [0, m) exactly once before repeating.
type lcgState struct {
	a, c, m, element int32
}

func (s lcgState) check() {
	if s.m&(s.m-1) != 0 || s.m < 4 || s.m > MaxPermutationSize {
		panic("lcg: invalid modulus")
	}
	if s.a <= 0 || s.c <= 0 {
		panic("lcg: a and c must be positive")
	}
	if (s.a-1)%4 != 0 {
		panic("lcg: a-1 must be divisible by 4")
	}
	if s.c%2 != 1 {
		panic("lcg: c must be odd")
	}
	if s.element < 0 || s.element > s.m {
		panic("lcg: element out of range")
	}
}

// next advances the generator by one step: element <- (a*element + c) mod m.
func (s *lcgState) next() {
	s.element = modPow2(int64(s.element)*int64(s.a)+int64(s.c), s.m)
}

// skip advances the generator by numSteps steps in O(log numSteps) using
// the closed form for repeated LCG application:
//
//	element_k = a^k * element_0 + c * (a^k - 1) / (a - 1)  (mod m)
//
// When a == 1 this degenerates to element + c*k (mod m).
func (s *lcgState) skip(numSteps int32) {
	if numSteps <= 0 {
		return
	}
	if s.a == 1 {
		s.element = modPow2(int64(s.element)+int64(s.c)*int64(numSteps), s.m)
		return
	}
	a1 := int64(s.a) - 1
	term1 := modPow2(powModPow2(int64(s.a), numSteps, int64(s.m))*int64(s.element), s.m)
	// a1*m need not be a power of two, so this exponentiation takes the
	// generic-modulus path.
	term2 := (powMod(int64(s.a), numSteps, a1*int64(s.m)) - 1) / a1 * int64(s.c)
	s.element = modPow2(term1+term2, s.m)
}

// modPow2 computes x mod m for m a power of two using a mask, which is
// valid as long as x >= 0 (guaranteed by every caller here).
func modPow2(x int64, m int32) int32 {
	return int32(x & int64(m-1))
}

// powModPow2 computes base^exp mod m, where m is a power of two, using the
// fast masking modulus at every squaring step.
func powModPow2(base int64, exp int32, m int64) int64 {
	result := int64(1)
	base %= m
	for exp > 0 {
		if exp&1 == 1 {
			result = (result * base) & (m - 1)
		}
		base = (base * base) & (m - 1)
		exp >>= 1
	}
	return result
}

// powMod computes base^exp mod m with a generic (non-power-of-two) modulus.
func powMod(base int64, exp int32, m int64) int64 {
	result := int64(1) % m
	base %= m
	for exp > 0 {
		if exp&1 == 1 {
			result = (result * base) % m
		}
		base = (base * base) % m
		exp >>= 1
	}
	return result
}

// permutationGenerator produces an unbounded sequence of full-period LCG
// states for a fixed power-of-two permutationSize, drawing fresh (a, c,
// element) parameters from a per-worker PRNG for each new permutation.
type permutationGenerator struct {
	permutationSize int32
	rng             *rand.Rand
}

func newPermutationGenerator(permutationSize int64, seed int64) *permutationGenerator {
	if permutationSize&(permutationSize-1) != 0 {
		panic("permutation size must be a power of two")
	}
	return &permutationGenerator{
		permutationSize: int32(permutationSize),
		rng:             rand.New(rand.NewSource(seed)),
	}
}

// startNewPermutation draws a fresh full-period LCG state: c is 2k+1 for
// random k in [0, m/2-1), a is 4k+1 for random k in [0, m/4), and the
// starting element is a uniform draw in [0, m).
func (g *permutationGenerator) startNewPermutation() lcgState {
	m := int64(g.permutationSize)
	c := 2*(g.rng.Int63n(m/2-1)) + 1
	a := 4*g.rng.Int63n(m/4) + 1
	element := g.rng.Int63n(m)
	s := lcgState{a: int32(a), c: int32(c), m: g.permutationSize, element: int32(element)}
	s.check()
	return s
}
