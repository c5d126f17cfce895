package esp

import (
	"fmt"
	"net"
	"strings"

	"github.com/pkg/errors"

	"github.com/treemana/atportal/log"
	"github.com/treemana/atportal/util"
)

// Encryption is the <ecn> field of AT+CWSAP, using the modem's own numbering.
type Encryption int

const (
	EncryptionOpen       Encryption = 0
	EncryptionWPAPSK     Encryption = 2
	EncryptionWPA2PSK    Encryption = 3
	EncryptionWPAWPA2PSK Encryption = 4
)

func (e Encryption) String() string {
	switch e {
	case EncryptionOpen:
		return "OPEN"
	case EncryptionWPAPSK:
		return "WPA_PSK"
	case EncryptionWPA2PSK:
		return "WPA2_PSK"
	case EncryptionWPAWPA2PSK:
		return "WPA_WPA2_PSK"
	default:
		return fmt.Sprintf("Encryption(%d)", int(e))
	}
}

const (
	MinConnLimit = 1
	MaxConnLimit = 8

	MinChannel = 1
	MaxChannel = 14

	modeSoftAPStation = 3
)

type APConfig struct {
	SSID       string     `json:"ssid"`
	Password   string     `json:"password"`
	Encryption Encryption `json:"encryption"`
	Channel    int        `json:"channel"`
	ConnLimit  int        `json:"conn_limit"`
	Hidden     bool       `json:"hidden"`
}

// Validate checks the config without touching the modem.
func (c APConfig) Validate() error {
	if len(c.SSID) == 0 {
		return errors.Wrap(ErrInvalidConfig, "missing ssid")
	}

	switch c.Encryption {
	case EncryptionOpen, EncryptionWPAPSK, EncryptionWPA2PSK, EncryptionWPAWPA2PSK:
	default:
		return errors.Wrapf(ErrInvalidConfig, "invalid encryption %d", int(c.Encryption))
	}

	if len(c.Password) == 0 && c.Encryption != EncryptionOpen {
		return errors.Wrapf(ErrInvalidConfig, "missing password for %s", c.Encryption)
	}

	if c.ConnLimit < MinConnLimit || c.ConnLimit > MaxConnLimit {
		return errors.Wrapf(ErrInvalidConfig, "conn limit %d out of [%d, %d]", c.ConnLimit, MinConnLimit, MaxConnLimit)
	}

	if c.Channel < MinChannel || c.Channel > MaxChannel {
		return errors.Wrapf(ErrInvalidConfig, "channel %d out of [%d, %d]", c.Channel, MinChannel, MaxChannel)
	}

	return nil
}

// command renders the AT+CWSAP_CUR command for c.
func (c APConfig) command() string {
	var hidden int
	if c.Hidden {
		hidden = 1
	}

	return fmt.Sprintf(`AT+CWSAP_CUR="%s","%s",%d,%d,%d,%d`,
		escape(c.SSID), escape(c.Password), c.Channel, int(c.Encryption), c.ConnLimit, hidden)
}

var atEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `,`, `\,`)

// escape quotes the characters AT string parameters treat as delimiters.
func escape(s string) string {
	return atEscaper.Replace(s)
}

// ConfigureAP switches the modem to soft-AP+station mode, applies c and
// enables multiplexed connections.
func (ap *AccessPoint) ConfigureAP(c APConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}

	cmds := []string{
		fmt.Sprintf("AT+CWMODE=%d", modeSoftAPStation),
		c.command(),
		"AT+CIPMUX=1",
	}

	for _, cmd := range cmds {
		if _, err := ap.t.Command(cmd, commandTimeout, 0); err != nil {
			return errors.Wrapf(err, "configure ap, command [%s]", strings.SplitN(cmd, "=", 2)[0])
		}
	}

	log.Sugar.Infof("access point ssid=%s, encryption=%s, channel=%d, conn_limit=%d, hidden=%t",
		c.SSID, c.Encryption, c.Channel, c.ConnLimit, c.Hidden)

	return nil
}

// IP returns the soft-AP address reported by AT+CIFSR.
func (ap *AccessPoint) IP() (net.IP, error) {
	raw, err := ap.t.Command("AT+CIFSR", commandTimeout, 0)
	if err != nil {
		return nil, errors.Wrap(err, "query address")
	}

	return util.ParseCIFSR(raw)
}

// StartListen enables the TCP server on port.
func (ap *AccessPoint) StartListen(port int) error {
	if _, err := ap.t.Command(fmt.Sprintf("AT+CIPSERVER=1,%d", port), commandTimeout, 0); err != nil {
		return errors.Wrapf(err, "listen port=%d", port)
	}

	ap.listenPort = port
	log.Sugar.Infof("access point listening port=%d", port)
	return nil
}

// StopListen disables the TCP server started by StartListen.
func (ap *AccessPoint) StopListen() error {
	if ap.listenPort == 0 {
		return nil
	}

	if _, err := ap.t.Command(fmt.Sprintf("AT+CIPSERVER=0,%d", ap.listenPort), commandTimeout, 0); err != nil {
		return errors.Wrapf(err, "stop listen port=%d", ap.listenPort)
	}

	log.Sugar.Infof("access point stopped listening port=%d", ap.listenPort)
	ap.listenPort = 0
	return nil
}

// Disconnect closes link.
func (ap *AccessPoint) Disconnect(link int) error {
	if _, err := ap.t.Command(fmt.Sprintf("AT+CIPCLOSE=%d", link), commandTimeout, commandRetries); err != nil {
		return errors.Wrapf(err, "close link=%d", link)
	}
	return nil
}

// UDPListen opens a UDP socket bound to port on the reserved UDP link.
func (ap *AccessPoint) UDPListen(port int) error {
	cmd := fmt.Sprintf(`AT+CIPSTART=%d,"UDP","0.0.0.0",%d,%d,2`, ap.udpLink, port, port)
	if _, err := ap.t.Command(cmd, commandTimeout, commandRetries); err != nil {
		return errors.Wrapf(err, "udp listen link=%d, port=%d", ap.udpLink, port)
	}

	log.Sugar.Infof("access point udp link=%d, port=%d", ap.udpLink, port)
	return nil
}

// UDPClose closes the reserved UDP link.
func (ap *AccessPoint) UDPClose() error {
	return ap.Disconnect(ap.udpLink)
}
