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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laszoo/laszoo/internal/collab/packages"
)

func TestExecutor_Apply_DispatchesEachKind(t *testing.T) {
	exec := packages.NewExecutor(packages.Apt)
	var ran [][]string
	packages.SetRunCommandForTest(exec, func(name string, args ...string) error {
		ran = append(ran, append([]string{name}, args...))
		return nil
	})

	ops := packages.Parse(`
+nginx
^curl --upgrade=true
!telnet
!!!sendmail
=vim
`)
	require.NoError(t, exec.Apply(ops))

	require.Len(t, ran, 4)
	assert.Equal(t, []string{"apt-get", "install", "-y", "nginx"}, ran[0])
	assert.Equal(t, []string{"apt-get", "install", "--only-upgrade", "-y", "curl"}, ran[1])
	assert.Equal(t, []string{"apt-get", "remove", "-y", "telnet"}, ran[2])
	assert.Equal(t, []string{"apt-get", "purge", "-y", "sendmail"}, ran[3])
}

func TestExecutor_Apply_UpgradeAllBeforeFailureIsFatal(t *testing.T) {
	exec := packages.NewExecutor(packages.Apt)
	packages.SetRunCommandForTest(exec, func(name string, args ...string) error {
		return nil
	})

	ops := packages.Parse(`++upgrade --before "false"`)
	// the before-hook runs through a real shell, not the stubbed run
	// command, so this exercises the fatal-before-hook path end to end.
	err := exec.Apply(ops)
	assert.Error(t, err)
}

func TestExecutor_Apply_UpgradeAllAfterFailureIsOnlyAWarning(t *testing.T) {
	exec := packages.NewExecutor(packages.Apt)
	packages.SetRunCommandForTest(exec, func(name string, args ...string) error {
		return nil
	})

	var hooked []string
	exec.OnHook = func(description string, err error) {
		hooked = append(hooked, fmt.Sprintf("%s:%v", description, err != nil))
	}

	ops := packages.Parse(`++upgrade --after "false"`)
	require.NoError(t, exec.Apply(ops))
	require.Len(t, hooked, 1)
	assert.Contains(t, hooked[0], `after: "false":true`)
}

func TestDetectManager_ReturnsErrorWhenNoneFound(t *testing.T) {
	// None of the well-known binary paths exist in the test sandbox, so
	// detection should fail rather than silently pick a default.
	_, err := packages.DetectManager()
	assert.Error(t, err)
}
