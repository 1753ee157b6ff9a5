package models

import "fmt"

// Segment est un libellé du vocabulaire fermé de segmentation.
type Segment string

const (
	SegmentChampions          Segment = "Champions"
	SegmentLoyalCustomers     Segment = "Loyal Customers"
	SegmentCantLoseThem       Segment = "Can't Lose Them"
	SegmentNewCustomers       Segment = "New Customers"
	SegmentPotentialLoyalists Segment = "Potential Loyalists"
	SegmentNeedAttention      Segment = "Need Attention"
	SegmentAtRisk             Segment = "At Risk"
	SegmentReactivated        Segment = "Reactivated"
	SegmentPromising          Segment = "Promising"
	SegmentAboutToSleep       Segment = "About to Sleep"
	SegmentHibernating        Segment = "Hibernating"
	SegmentLost               Segment = "Lost"
	SegmentProspects          Segment = "Prospects"
)

// Segments liste les 13 segments dans l'ordre de rapport.
var Segments = []Segment{
	SegmentChampions,
	SegmentLoyalCustomers,
	SegmentCantLoseThem,
	SegmentNewCustomers,
	SegmentPotentialLoyalists,
	SegmentNeedAttention,
	SegmentAtRisk,
	SegmentReactivated,
	SegmentPromising,
	SegmentAboutToSleep,
	SegmentHibernating,
	SegmentLost,
	SegmentProspects,
}

// ParseSegment refuse tout libellé hors vocabulaire.
func ParseSegment(s string) (Segment, error) {
	for _, seg := range Segments {
		if string(seg) == s {
			return seg, nil
		}
	}
	return "", fmt.Errorf("unknown segment %q", s)
}

// Rank retourne la position du segment dans le rapport (1..13), 0 si inconnu.
func (s Segment) Rank() int {
	for i, seg := range Segments {
		if seg == s {
			return i + 1
		}
	}
	return 0
}
