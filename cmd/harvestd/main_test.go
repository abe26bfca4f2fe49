package main

import "testing"

func TestNewHarvestdCommandRegistersExpectedFlags(t *testing.T) {
	command := newHarvestdCommand()

	for _, flagName := range []string{
		flagHostName, flagPortName, flagDBPathName, flagPacingPresetName,
		flagBudgetProfileName, flagApifyBaseURLName, flagApifyActorName, flagChromeBinaryName,
	} {
		if command.Flags().Lookup(flagName) == nil {
			t.Fatalf("expected flag %q to be registered", flagName)
		}
	}

	hostFlag := command.Flags().Lookup(flagHostName)
	if hostFlag.DefValue != defaultHost {
		t.Fatalf("expected default host %q, got %q", defaultHost, hostFlag.DefValue)
	}
}
