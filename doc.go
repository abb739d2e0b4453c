// Package lanshare hosts and joins small LAN sessions in which every peer
// sees every other peer's avatar and the host streams its screen and audio
// to the viewers.
//
// # Hosting
//
//	options := lanshare.NewOptions()
//	options.Name = "Living Room"
//	options.ApplyEnvironment()
//
//	host, err := lanshare.NewHost(options, screen, speakers)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer host.Close()
//
//	for host.IsRunning() {
//	    host.SetLocalPlayer(simulation.LocalState())
//	    host.Iterate()
//	    render(host.RemotePlayers())
//	    time.Sleep(options.TickInterval)
//	}
//
// # Joining
//
//	client, err := lanshare.Join(options, "192.168.1.20:5000", window)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	device.OnCallback(client.Playback().Fill)
//	for client.IsRunning() {
//	    client.SetLocalPlayer(simulation.LocalState())
//	    client.Iterate()
//	    render(client.RemotePlayers())
//	}
//
// Sessions are found with the discovery package, which collects the beacons
// every host broadcasts once per second.
//
// # Threading
//
// Iterate, SetLocalPlayer and RemotePlayers belong to one goroutine, the
// tick loop. Encoding, decoding, sending and socket reads run on background
// workers that exchange data with the tick loop over channels. Close stops
// every worker before it returns.
package lanshare
