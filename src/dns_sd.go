package wavecraft

/*------------------------------------------------------------------
 *
 * Purpose:   	Announce the dev runtime using DNS-SD.
 *
 * Description:
 *
 *     Pointing a tablet's browser at the UI of a runtime on another
 *     machine means typing an IP and port; announcing the WebSocket
 *     endpoint on the local network lets discovery do it instead.
 *
 *     This uses the pure-Go github.com/brutella/dnssd package for
 *     cross-platform mDNS/DNS-SD service announcement without requiring
 *     any system daemon or C library dependencies.
 *
 *------------------------------------------------------------------*/

import (
	"context"
	"os"
	"strings"

	"github.com/brutella/dnssd"
)

const DNS_SD_SERVICE = "_wavecraft._tcp"

func dns_sd_default_service_name() string {
	var hostname, hostname_err = os.Hostname()
	if hostname_err != nil {
		return "Wavecraft"
	}

	// on some systems, an FQDN is returned; remove domain part
	hostname, _, _ = strings.Cut(hostname, ".")

	return "Wavecraft on " + hostname
}

func dns_sd_announce(port int, shutdown <-chan struct{}) {
	var cfg = dnssd.Config{ //nolint:exhaustruct
		Name: dns_sd_default_service_name(),
		Type: DNS_SD_SERVICE,
		Port: port,
	}

	var sv, sv_err = dnssd.NewService(cfg)
	if sv_err != nil {
		log_sub("dnssd").Warn("failed to create service", "err", sv_err)
		return
	}

	var rp, rp_err = dnssd.NewResponder()
	if rp_err != nil {
		log_sub("dnssd").Warn("failed to create responder", "err", rp_err)
		return
	}

	var _, add_err = rp.Add(sv)
	if add_err != nil {
		log_sub("dnssd").Warn("failed to add service", "err", add_err)
		return
	}

	text_color_set(DW_COLOR_INFO)
	dw_printf("DNS-SD: Announcing dev runtime on port %d as '%s'\n", port, cfg.Name)

	var ctx, cancel = context.WithCancel(context.Background())
	go func() {
		<-shutdown
		cancel()
	}()

	go func() {
		var respond_err = rp.Respond(ctx)
		if respond_err != nil && ctx.Err() == nil {
			log_sub("dnssd").Warn("responder error", "err", respond_err)
		}
	}()
}
