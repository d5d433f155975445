package registry

import "testing"

func TestTierOf(t *testing.T) {
	reg := New()

	tests := []struct {
		id         string
		tier       int
		name       string
		basePoints int64
	}{
		{"aave.eth", 1, "Major DeFi", 100},
		{"arbitrumfoundation.eth", 2, "L2 & Infrastructure", 80},
		{"lido-snapshot.eth", 3, "Established DeFi", 60},
		{"ens.eth", 4, "Infrastructure & Tools", 60},
		{"safe.eth", 4, "Infrastructure & Tools", 60},
		{"apecoin.eth", 5, "Community", 40},
		{"unknown.eth", 5, "Emerging", 20},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			tier := reg.TierOf(tt.id)
			if tier.Tier != tt.tier {
				t.Fatalf("Tier = %d, want %d", tier.Tier, tt.tier)
			}
			if tier.Name != tt.name {
				t.Fatalf("Name = %q, want %q", tier.Name, tt.name)
			}
			if tier.BasePoints != tt.basePoints {
				t.Fatalf("BasePoints = %d, want %d", tier.BasePoints, tt.basePoints)
			}
		})
	}
}

func TestLookupUnknown(t *testing.T) {
	reg := New()

	dao := reg.Lookup("nosuchdao.eth")
	if dao.ID != "nosuchdao.eth" {
		t.Fatalf("ID = %q, want original identifier", dao.ID)
	}
	if dao.BasePoints != 20 || dao.Tier != 5 {
		t.Fatalf("unknown DAO must fall back to tier 5 with 20 points, got tier %d, %d points", dao.Tier, dao.BasePoints)
	}
	if dao.IsActive {
		t.Fatalf("unknown DAO must be inactive")
	}
}

func TestListAllPreservesOrderAndTiers(t *testing.T) {
	reg := New()

	daos := reg.ListAll()
	if len(daos) != 20 {
		t.Fatalf("len = %d, want 20", len(daos))
	}
	if daos[0].ID != "aave.eth" {
		t.Fatalf("first DAO = %q, want aave.eth", daos[0].ID)
	}
	for _, d := range daos {
		if d.Tier < 1 || d.Tier > 5 {
			t.Fatalf("DAO %s has tier %d outside 1..5", d.ID, d.Tier)
		}
	}

	// Каталог не должен меняться через возвращённый срез.
	daos[0].ID = "mutated"
	if reg.ListAll()[0].ID != "aave.eth" {
		t.Fatalf("ListAll must return a copy")
	}
}
