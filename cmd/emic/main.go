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

// Command emic is a command-line interface for the EMIC coupled
// ocean-atmosphere model.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spatialmodel/emic"
	"github.com/spatialmodel/emic/emicutil"
)

func main() {
	if err := emicutil.Root.Execute(); err != nil {
		fmt.Println(err)
		if errors.Is(err, emic.ErrNotReady) {
			os.Exit(2)
		}
		os.Exit(-1)
	}
}
