/*
Copyright © 2025 The laszoo Authors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package packages_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laszoo/laszoo/internal/collab/packages"
)

func TestParse_RecognizesEveryLineKind(t *testing.T) {
	ops := packages.Parse(`
# a comment
+nginx
=vim
!telnet
!!!sendmail
^curl --upgrade=curl-migrate
++update --before "apt clean" --after "apt autoremove"
++upgrade
`)

	require.Len(t, ops, 7)
	assert.Equal(t, packages.Operation{Kind: packages.Install, Name: "nginx"}, ops[0])
	assert.Equal(t, packages.Operation{Kind: packages.Keep, Name: "vim"}, ops[1])
	assert.Equal(t, packages.Operation{Kind: packages.Remove, Name: "telnet"}, ops[2])
	assert.Equal(t, packages.Operation{Kind: packages.Purge, Name: "sendmail"}, ops[3])
	assert.Equal(t, packages.Operation{Kind: packages.Upgrade, Name: "curl", PostAction: "curl-migrate"}, ops[4])
	assert.Equal(t, packages.UpdateAll, ops[5].Kind)
	assert.Equal(t, `"apt clean"`, ops[5].Before)
	assert.Equal(t, `"apt autoremove"`, ops[5].After)
	assert.Equal(t, packages.Operation{Kind: packages.UpgradeAll}, ops[6])
}

func TestParse_IgnoresUnrecognizedLines(t *testing.T) {
	ops := packages.Parse("++\nnot a line\n")
	assert.Empty(t, ops)
}

func TestMerge_MachineOverridesGroupByName(t *testing.T) {
	group := []packages.Operation{
		{Kind: packages.Install, Name: "nginx"},
		{Kind: packages.Keep, Name: "vim"},
	}
	machine := []packages.Operation{
		{Kind: packages.Remove, Name: "nginx"},
	}

	merged := packages.Merge(group, machine)

	byName := map[string]packages.Operation{}
	for _, op := range merged {
		byName[op.Name] = op
	}
	require.Contains(t, byName, "nginx")
	assert.Equal(t, packages.Remove, byName["nginx"].Kind)
	require.Contains(t, byName, "vim")
	assert.Equal(t, packages.Keep, byName["vim"].Kind)
}

func TestMerge_PassesThroughBothUpdateAllOperations(t *testing.T) {
	group := []packages.Operation{{Kind: packages.UpdateAll}}
	machine := []packages.Operation{{Kind: packages.UpgradeAll}}

	merged := packages.Merge(group, machine)

	assert.Len(t, merged, 2)
}
