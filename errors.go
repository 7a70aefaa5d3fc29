/*
Copyright © 2019 the EMIC authors.
This file is part of EMIC.

EMIC is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

EMIC is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with EMIC.  If not, see <http://www.gnu.org/licenses/>.
*/

package emic

import "errors"

var (
	// ErrInvalidScheme is returned by Solve when the solving scheme
	// is not one of the known schemes. No solve is performed.
	ErrInvalidScheme = errors.New("emic: invalid solving scheme")

	// ErrInvalidMode indicates an access mode other than View or Copy.
	ErrInvalidMode = errors.New("emic: invalid access mode")

	// ErrDimensionMismatch indicates that the sub-models or vectors
	// do not fit together.
	ErrDimensionMismatch = errors.New("emic: dimension mismatch")

	// ErrNotReady indicates that a sub-model did not become ready
	// for coupling in time.
	ErrNotReady = errors.New("emic: sub-model not ready")

	// ErrSingular indicates a singular Jacobian.
	ErrSingular = errors.New("emic: singular matrix")
)
