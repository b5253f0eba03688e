package globalplatform

import (
	"fmt"
	"os"

	"github.com/cardium/cardium/pkg/apdu"
	"github.com/cardium/cardium/pkg/card"
)

// GlobalPlatform drives card content management through an executor.
// Creating it installs an SCP02 provider, so commands that require a
// secure channel trigger the handshake on first use.
type GlobalPlatform struct {
	exec *card.Executor
}

// ProgressFunc observes CAP loading; done and total count blocks.
type ProgressFunc func(done, total int)

// New attaches card management to an executor using the given static
// keys for secure channel negotiation.
func New(exec *card.Executor, keys Keys) *GlobalPlatform {
	exec.SetProvider(NewProvider(keys))
	return &GlobalPlatform{exec: exec}
}

// SelectCardManager selects the Issuer Security Domain and returns its
// FCI template.
func (g *GlobalPlatform) SelectCardManager() ([]byte, error) {
	return g.Select(SecurityDomainAID)
}

// Select selects an application by AID.
func (g *GlobalPlatform) Select(aid []byte) ([]byte, error) {
	return card.Execute(g.exec, NewSelect(aid), SelectResolver)
}

// OpenSecureChannel forces the SCP02 handshake now instead of on the
// first secured command.
func (g *GlobalPlatform) OpenSecureChannel() error {
	return g.exec.OpenSecureChannel(levelAuthMAC())
}

// Delete removes an object from the card.
func (g *GlobalPlatform) Delete(aid []byte) error {
	_, err := card.Execute(g.exec, NewDelete(aid, false), DeleteResolver)
	return err
}

// DeleteAndRelated removes an object and everything depending on it,
// the usual way to uninstall a package with its instances.
func (g *GlobalPlatform) DeleteAndRelated(aid []byte) error {
	_, err := card.Execute(g.exec, NewDelete(aid, true), DeleteResolver)
	return err
}

// InstallForLoad announces a package load to the given security
// domain; empty sdAID targets the ISD.
func (g *GlobalPlatform) InstallForLoad(packageAID, sdAID []byte) error {
	_, err := card.Execute(g.exec, NewInstallForLoad(packageAID, sdAID), InstallResolver)
	return err
}

// InstallForInstall instantiates an applet and makes it selectable.
func (g *GlobalPlatform) InstallForInstall(packageAID, moduleAID, instanceAID, params []byte) error {
	_, err := card.Execute(g.exec, NewInstallForInstall(packageAID, moduleAID, instanceAID, params, true), InstallResolver)
	return err
}

// Load streams a prepared LoadStream to the card, reporting progress
// after each acknowledged block. The first rejected block aborts.
func (g *GlobalPlatform) Load(stream *LoadStream, progress ProgressFunc) error {
	total := stream.Blocks()
	for {
		last, index, block, ok := stream.NextBlock()
		if !ok {
			return nil
		}

		if _, err := card.Execute(g.exec, NewLoad(last, index, block), LoadResolver); err != nil {
			return fmt.Errorf("loading block %d of %d: %w", int(index)+1, total, err)
		}

		if progress != nil {
			progress(int(index)+1, total)
		}
	}
}

// LoadCAP reads a CAP file from disk, announces it with INSTALL [for
// load] and streams its blocks.
func (g *GlobalPlatform) LoadCAP(path string, sdAID []byte, progress ProgressFunc) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening CAP file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("opening CAP file: %w", err)
	}

	info, err := ExtractCAPInfo(f, stat.Size())
	if err != nil {
		return err
	}
	if info.PackageAID == nil {
		return &CAPError{Reason: "package AID not found"}
	}

	stream, err := LoadStreamFromCAP(f, stat.Size(), DefaultBlockSize)
	if err != nil {
		return err
	}

	if err := g.InstallForLoad(info.PackageAID, sdAID); err != nil {
		return err
	}
	return g.Load(stream, progress)
}

// ListApplications returns the registry entries for applications and
// security domains.
func (g *GlobalPlatform) ListApplications() ([]ApplicationEntry, error) {
	data, err := card.Execute(g.exec, NewGetStatus(P1_STATUS_APPLICATIONS, nil), GetStatusResolver)
	if err != nil {
		return nil, err
	}
	return ParseApplications(data)
}

// ListLoadFiles returns the registry entries for executable load files.
func (g *GlobalPlatform) ListLoadFiles() ([]LoadFileEntry, error) {
	data, err := card.Execute(g.exec, NewGetStatus(P1_STATUS_EXEC_LOAD_FILES, nil), GetStatusResolver)
	if err != nil {
		return nil, err
	}
	return ParseLoadFiles(data)
}

// StoreData sends one personalization block.
func (g *GlobalPlatform) StoreData(last bool, blockNumber byte, data []byte) error {
	_, err := card.Execute(g.exec, NewStoreData(last, blockNumber, data), StoreDataResolver)
	return err
}

// PutKey loads a key set onto the card and returns the check values.
func (g *GlobalPlatform) PutKey(p1, keyVersion byte, keyData []byte) ([]byte, error) {
	return card.Execute(g.exec, NewPutKey(p1, keyVersion, keyData), PutKeyResolver)
}

// Level reports the security currently in force on the executor.
func (g *GlobalPlatform) Level() apdu.SecurityLevel {
	return g.exec.Level()
}
