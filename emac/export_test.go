package emac

var CurrentLogger = currentLogger
